// Package guard implements the re-identification guard: n-gram overlap
// detection between compiled output and the masked source texts, plus
// deterministic quote-breaking. Any residual overlap is blocking; the
// guard never estimates.
package guard

import (
	"regexp"
	"strings"
)

const (
	// ReasonQuoteDetected flags a verbatim run from a source text.
	ReasonQuoteDetected = "quote_detected"

	// breakMarker is the token spliced into a detected quote. It becomes
	// a word of its own, so the exact n-gram can no longer be contiguous.
	breakMarker = "…"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// normalize lowercases and collapses runs of whitespace to single
// spaces. Detection and repair share this so they agree on word
// boundaries.
func normalize(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(text), " "))
}

// ngramSet collects every n-word window from the normalized texts.
func ngramSet(texts []string, n int) map[string]struct{} {
	set := map[string]struct{}{}
	for _, text := range texts {
		words := strings.Fields(normalize(text))
		for i := 0; i+n <= len(words); i++ {
			set[strings.Join(words[i:i+n], " ")] = struct{}{}
		}
	}
	return set
}

// Detect reports whether the candidate contains any verbatim
// (quoteLimitWords+1)-word run from the source texts.
func Detect(candidate string, sourceTexts []string, quoteLimitWords int) (bool, []string) {
	if quoteLimitWords <= 0 {
		return true, nil
	}
	n := quoteLimitWords + 1
	grams := ngramSet(sourceTexts, n)
	if len(grams) == 0 {
		return true, nil
	}

	normalized := normalize(candidate)
	for gram := range grams {
		if strings.Contains(normalized, gram) {
			return false, []string{ReasonQuoteDetected}
		}
	}
	return true, nil
}

// arena holds the candidate split into alternating whitespace and
// non-whitespace segments. Segments are never rewritten; repair only
// splices new ones in, so the original wording survives verbatim.
type arena struct {
	segments []string
	isSpace  []bool
}

func newArena(text string) *arena {
	a := &arena{}
	start := 0
	inSpace := false
	flush := func(end int) {
		if end > start {
			a.segments = append(a.segments, text[start:end])
			a.isSpace = append(a.isSpace, inSpace)
			start = end
		}
	}
	for i, r := range text {
		rs := r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
		if i == 0 {
			inSpace = rs
			continue
		}
		if rs != inSpace {
			flush(i)
			inSpace = rs
		}
	}
	flush(len(text))
	return a
}

func (a *arena) String() string {
	return strings.Join(a.segments, "")
}

// wordIndex maps word positions to segment indices, with the lowercased
// word tokens alongside.
func (a *arena) wordIndex() (segIdx []int, words []string) {
	for i, seg := range a.segments {
		if a.isSpace[i] {
			continue
		}
		segIdx = append(segIdx, i)
		words = append(words, strings.ToLower(seg))
	}
	return segIdx, words
}

// insertMarkerBefore splices " … " in front of the given segment index
// (or at the end when the index is past the last segment).
func (a *arena) insertMarkerBefore(segAt int) {
	insertion := []string{" ", breakMarker, " "}
	insertionSpace := []bool{true, false, true}
	a.segments = append(a.segments[:segAt], append(append([]string{}, insertion...), a.segments[segAt:]...)...)
	a.isSpace = append(a.isSpace[:segAt], append(append([]bool{}, insertionSpace...), a.isSpace[segAt:]...)...)
}

// BreakQuotes deterministically repairs detected quotes: find the
// left-most matching n-gram, splice a break marker a few words into it,
// re-derive the index, repeat. Wording is never changed. Returns the
// repaired text and the number of breaks applied.
func BreakQuotes(candidate string, sourceTexts []string, quoteLimitWords, maxBreaks int) (string, int) {
	if candidate == "" || len(sourceTexts) == 0 || quoteLimitWords <= 0 {
		return candidate, 0
	}
	n := quoteLimitWords + 1
	grams := ngramSet(sourceTexts, n)
	if len(grams) == 0 {
		return candidate, 0
	}

	a := newArena(candidate)
	breaks := 0
	for breaks < maxBreaks {
		segIdx, words := a.wordIndex()
		if len(words) < n {
			break
		}

		found := -1
		for i := 0; i+n <= len(words); i++ {
			if _, ok := grams[strings.Join(words[i:i+n], " ")]; ok {
				found = i
				break
			}
		}
		if found < 0 {
			break
		}

		cut := n / 2
		if cut < 3 {
			cut = 3
		}
		insertWordPos := found + cut
		if insertWordPos > len(words) {
			insertWordPos = len(words)
		}
		segAt := len(a.segments)
		if insertWordPos < len(segIdx) {
			segAt = segIdx[insertWordPos]
		}
		a.insertMarkerBefore(segAt)
		breaks++
	}
	return a.String(), breaks
}
