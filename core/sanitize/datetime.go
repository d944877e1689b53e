package sanitize

import (
	"regexp"

	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

const (
	dayPattern  = `(0?[1-9]|[12]\d|3[01])`
	yearPattern = `(19|20)\d{2}`

	monthsLong  = `(januari|februari|mars|april|maj|juni|juli|augusti|september|oktober|november|december|january|february|march|may|june|july|august|october|december)`
	monthsShort = `(jan|feb|mar|apr|maj|may|jun|jul|aug|sep|sept|okt|oct|nov|dec)`
)

var (
	isoDateRe = regexp.MustCompile(`\b(19|20)\d{2}[-/](0[1-9]|1[0-2])[-/](0[1-9]|[12]\d|3[01])\b`)
	dmyDateRe = regexp.MustCompile(`\b` + dayPattern + `/(0?[1-9]|1[0-2])/` + yearPattern + `\b`)

	dateLongRe       = regexp.MustCompile(`(?i)\b` + dayPattern + `\s+` + monthsLong + `\s+` + yearPattern + `\b`)
	dateShortRe      = regexp.MustCompile(`(?i)\b` + dayPattern + `\s+` + monthsShort + `\.?\s+` + yearPattern + `\b`)
	dateLongNoYearRe = regexp.MustCompile(`(?i)\b` + dayPattern + `\s+` + monthsLong + `\b`)

	clockRe = regexp.MustCompile(`(?i)\b(kl\.?\s+|at\s+)?([01]?\d|2[0-3])[:.][0-5]\d\b`)

	// Leading å/ä/ö defeats RE2's ASCII \b, so relative-time words anchor
	// on explicit non-letter delimiters and run to a fixed point.
	relativeTimeRe = regexp.MustCompile(`(?i)(^|[^\pL])(igår|i går|idag|i dag|imorgon|i morgon|förrgår|övermorgon|yesterday|today|tomorrow)($|[^\pL])`)
)

// MaskDatetime replaces dates and clock times with [DATE] and [TIME]
// tokens; at the paranoid level relative-time words become [RELTIME].
// It returns the substitution count for observability and is idempotent:
// re-masking already-masked text changes nothing. The substituted values
// themselves are never logged.
func MaskDatetime(text string, level knox.SanitizeLevel) (string, int) {
	count := 0

	replace := func(re *regexp.Regexp, token string) {
		matches := len(re.FindAllStringIndex(text, -1))
		if matches == 0 {
			return
		}
		text = re.ReplaceAllString(text, token)
		count += matches
	}

	replace(isoDateRe, TokenDate)
	replace(dmyDateRe, TokenDate)
	replace(dateLongRe, TokenDate)
	replace(dateShortRe, TokenDate)
	replace(dateLongNoYearRe, TokenDate)
	replace(clockRe, TokenTime)

	if level == knox.LevelParanoid {
		// Delimiter anchoring can hide back-to-back occurrences from a
		// single pass; iterate to a fixed point.
		for {
			matches := len(relativeTimeRe.FindAllStringIndex(text, -1))
			if matches == 0 {
				break
			}
			text = relativeTimeRe.ReplaceAllString(text, "${1}"+TokenRelTime+"${3}")
			count += matches
		}
	}

	return text, count
}
