package sanitize

import (
	"regexp"
	"sort"
	"strings"
)

// Gate reason codes. Generic by design: a reason never carries the
// matched value.
const (
	ReasonPersonalNumber = "personal_number_detected"
	ReasonBirthdate      = "birthdate_like_sequence_detected"
	ReasonEmail          = "email_detected"
	ReasonPhone          = "phone_detected"
	ReasonUnmaskedID     = "unmasked_id_detected"
	ReasonLongNumber     = "long_number_detected"
)

var (
	maskTokenRe = regexp.MustCompile(`(?i)\[(EMAIL|PHONE|REDACTED|ID|NUM|LINK|NAME|DATE|TIME|RELTIME)\]`)

	gatePersonalNumberRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(19|20)\d{6}[- ]\d{4}\b`),
		regexp.MustCompile(`\b(19|20)\d{10}\b`),
		regexp.MustCompile(`\b\d{6}[- ]\d{4}\b`),
		regexp.MustCompile(`\b\d{10}\b`),
	}

	// Compact YYYYMMDD runs; dashed dates nearby mean it is a date
	// reference, not a birthdate.
	birthdateRe     = regexp.MustCompile(`\b(19|20)\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])\b`)
	dashedDateRe    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	isoDateShapedRe = regexp.MustCompile(`^(19|20)\d{2}-\d{2}-\d{2}$`)

	gatePhoneRes = []*regexp.Regexp{
		regexp.MustCompile(`\+46\s*\d{1,2}[- ]?\d{2,3}[- ]?\d{2,3}[- ]?\d{2,4}`),
		regexp.MustCompile(`\b0\d{1,2}[- ]\d{2,3}[- ]?\d{2,3}[- ]?\d{2,4}\b`),
		regexp.MustCompile(`\b07\d[- ]\d{2,3}[- ]?\d{2,3}[- ]?\d{2,4}\b`),
	}

	// Also matches a boundary-delimited all-digit hex digest prefix,
	// e.g. in a rendered audit footer. Known limitation: such output
	// fails closed.
	gateLongNumberRe = regexp.MustCompile(`\b\d{9,}\b`)
)

// GateCheck re-scans already-masked text for residual PII-shaped
// patterns. It is the fail-closed arbiter for both the input and the
// output gate: any hit blocks. Mask tokens are stripped first so the
// tokens themselves cannot produce false positives.
func GateCheck(text string) (bool, []string) {
	scanned := maskTokenRe.ReplaceAllString(text, "[TOKEN]")

	var reasons []string
	add := func(reason string) {
		for _, existing := range reasons {
			if existing == reason {
				return
			}
		}
		reasons = append(reasons, reason)
	}

	for _, re := range gatePersonalNumberRes {
		if re.MatchString(scanned) {
			add(ReasonPersonalNumber)
			break
		}
	}

	for _, span := range birthdateRe.FindAllStringIndex(scanned, -1) {
		start := span[0] - 20
		if start < 0 {
			start = 0
		}
		end := span[1] + 20
		if end > len(scanned) {
			end = len(scanned)
		}
		if !dashedDateRe.MatchString(scanned[start:end]) {
			add(ReasonBirthdate)
			break
		}
	}

	if emailRe.MatchString(scanned) {
		add(ReasonEmail)
	}

	for _, re := range gatePhoneRes {
		for _, match := range re.FindAllString(scanned, -1) {
			if isoDateShapedRe.MatchString(match) {
				continue
			}
			if digitCount(match) >= 7 {
				add(ReasonPhone)
				break
			}
		}
	}

	for _, re := range idLabelRes {
		if re.MatchString(scanned) {
			add(ReasonUnmaskedID)
			break
		}
	}

	if gateLongNumberRe.MatchString(scanned) {
		add(ReasonLongNumber)
	}

	sort.Strings(reasons)
	return len(reasons) == 0, reasons
}

// PrefixReasons namespaces gate reasons for a surrounding gate outcome,
// e.g. "pii_gate_email_detected".
func PrefixReasons(prefix string, reasons []string) []string {
	out := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		out = append(out, prefix+strings.TrimSpace(reason))
	}
	return out
}
