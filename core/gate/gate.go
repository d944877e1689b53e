// Package gate holds the two fail-closed checkpoints of a compile: the
// input gate that decides whether a pack may leave the process boundary,
// and the output gate that decides whether a compiled candidate may be
// persisted. Both return machine reason codes, never offending text.
package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DanielWarg/fortknox/core/guard"
	"github.com/DanielWarg/fortknox/core/jcs"
	"github.com/DanielWarg/fortknox/core/sanitize"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

// Input validates a pack against its policy: per-item sanitize level,
// PII gate over the combined masked texts, and canonical pack size.
// Reasons accumulate; the gate never stops at the first failure.
func Input(pack knox.InputPack, policy knox.Policy) (bool, []string) {
	var reasons []string

	required := policy.SanitizeMinLevel.Rank()
	for _, doc := range pack.Documents {
		if doc.SanitizeLevel.Rank() < required {
			reasons = append(reasons, fmt.Sprintf("document_%s_sanitize_level_too_low", doc.ID))
		}
	}
	for _, note := range pack.Notes {
		if note.SanitizeLevel.Rank() < required {
			reasons = append(reasons, fmt.Sprintf("note_%s_sanitize_level_too_low", note.ID))
		}
	}

	combined := strings.Join(pack.SourceTexts(), "\n\n")
	if ok, piiReasons := sanitize.GateCheck(combined); !ok {
		reasons = append(reasons, sanitize.PrefixReasons("pii_gate_", piiReasons)...)
	}

	if canonical, err := jcs.Canonicalize(pack); err == nil {
		if size := len(canonical); size > policy.MaxBytes {
			reasons = append(reasons, fmt.Sprintf("pack_size_exceeded_%d_%d", size, policy.MaxBytes))
		}
	} else {
		// A pack that cannot canonicalize cannot be size-checked; fail closed.
		reasons = append(reasons, "pack_canonicalization_failed")
	}

	sort.Strings(reasons)
	return len(reasons) == 0, reasons
}

// maxQuoteBreaks bounds repair attempts on one candidate.
const maxQuoteBreaks = 12

// Output validates a rendered candidate: PII gate over the full text,
// then the re-identification guard. A detected quote gets one bounded
// deterministic repair pass before the verdict. Returns the (possibly
// repaired) candidate with the verdict; on failure the candidate must
// not be persisted.
func Output(candidate string, sourceTexts []string, policy knox.Policy) (string, bool, []string) {
	var reasons []string

	if ok, piiReasons := sanitize.GateCheck(candidate); !ok {
		reasons = append(reasons, sanitize.PrefixReasons("pii_gate_", piiReasons)...)
	}

	guardPass, guardReasons := guard.Detect(candidate, sourceTexts, policy.QuoteLimitWords)
	if !guardPass && contains(guardReasons, guard.ReasonQuoteDetected) {
		repaired, breaks := guard.BreakQuotes(candidate, sourceTexts, policy.QuoteLimitWords, maxQuoteBreaks)
		if breaks > 0 {
			candidate = repaired
			guardPass, guardReasons = guard.Detect(candidate, sourceTexts, policy.QuoteLimitWords)
		}
	}
	if !guardPass {
		reasons = append(reasons, guardReasons...)
	}

	sort.Strings(reasons)
	return candidate, len(reasons) == 0, reasons
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
