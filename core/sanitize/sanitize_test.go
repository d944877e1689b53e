package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

func TestNormalize(t *testing.T) {
	in := "rad ett  \r\nrad två\t\r\n\r\n\r\n\r\nrad tre\r"
	want := "rad ett\nrad två\n\nrad tre"
	assert.Equal(t, want, Normalize(in))
}

func TestMaskNormal(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"email", "kontakta test@example.com idag", "kontakta [EMAIL] idag"},
		{"personal number", "pnr 19800101-1234 noterat", "pnr [REDACTED] noterat"},
		{"mobile", "ring 070-123 45 67 ikväll", "ring [PHONE] ikväll"},
		{"intl phone", "nås på +46 70 123 45 67", "nås på [PHONE]"},
		{"long digit run", "ref 123456789012 klar", "ref [REDACTED] klar"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Mask(tc.in, knox.LevelNormal))
		})
	}
}

func TestMaskStrictDatetimeBeforePhone(t *testing.T) {
	// A date plus clock time must become [DATE] [TIME], never a partial
	// [PHONE] match.
	out := Mask("Möte 2026-01-06 13:24.", knox.LevelStrict)
	assert.Equal(t, "Möte [DATE] [TIME].", out)
}

func TestMaskStrictIDLabelsAndClusters(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"id label", "se ID: 1234 i akten", "se [ID] i akten"},
		{"dok id", "Dok.Id 998877", "[ID]"},
		{"digit cluster", "belopp 322 9448 kr", "belopp [NUM] kr"},
		{"short cluster kept", "sida 12 34", "sida 12 34"},
		{"standalone digits", "ärende 56789", "ärende [NUM]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Mask(tc.in, knox.LevelStrict))
		})
	}
}

func TestMaskParanoid(t *testing.T) {
	out := Mask("Sökande Anna Ek\nmail a@b.se, läs https://example.com/x sida 7", knox.LevelParanoid)
	assert.Contains(t, out, "Sökande [NAME]")
	assert.NotContains(t, out, "a@b.se")
	assert.NotContains(t, out, "example.com")
	assert.NotContains(t, out, "7")
	assert.Contains(t, out, "[NUM]")
}

func TestMaskDatetime(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		level     knox.SanitizeLevel
		want      string
		minCount  int
	}{
		{"iso and clock", "Möte 2026-01-06 13:24.", knox.LevelStrict, "Möte [DATE] [TIME].", 2},
		{"dmy", "den 6/1/2026", knox.LevelStrict, "den [DATE]", 1},
		{"swedish long month", "6 januari 2026 kl 09:15", knox.LevelStrict, "[DATE] [TIME]", 2},
		{"short month", "12 okt. 2024", knox.LevelStrict, "[DATE]", 1},
		{"english month", "3 october 2025", knox.LevelStrict, "[DATE]", 1},
		{"no year", "vi ses 6 januari", knox.LevelStrict, "vi ses [DATE]", 1},
		{"relative kept at strict", "det hände igår", knox.LevelStrict, "det hände igår", 0},
		{"relative masked at paranoid", "det hände igår", knox.LevelParanoid, "det hände [RELTIME]", 1},
		{"relative leading umlaut", "övermorgon åker vi", knox.LevelParanoid, "[RELTIME] åker vi", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, count := MaskDatetime(tc.in, tc.level)
			assert.Equal(t, tc.want, out)
			assert.GreaterOrEqual(t, count, tc.minCount)
		})
	}
}

func TestMaskDatetimeIdempotent(t *testing.T) {
	inputs := []string{
		"Möte 2026-01-06 13:24.",
		"6 januari 2026 och igår kl 07:45",
		"deadline 12/5/2025, därefter imorgon",
	}
	for _, level := range []knox.SanitizeLevel{knox.LevelStrict, knox.LevelParanoid} {
		for _, in := range inputs {
			once, _ := MaskDatetime(in, level)
			twice, count := MaskDatetime(once, level)
			require.Equal(t, once, twice, "level %s input %q", level, in)
			require.Zero(t, count)
		}
	}
}

func TestGateCheck(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		safe   bool
		reason string
	}{
		{"clean masked text", "möte med [NAME] den [DATE]", true, ""},
		{"personal number", "pnr 800101-1234", false, ReasonPersonalNumber},
		{"compact birthdate", "född 19780126", false, ReasonBirthdate},
		{"email", "nå mig på test@example.com", false, ReasonEmail},
		{"phone", "ring 070-123 45 67", false, ReasonPhone},
		{"unmasked id label", "se ID: 4455", false, ReasonUnmaskedID},
		{"long number", "kontonr 123456789", false, ReasonLongNumber},
		{"tokens are not flagged", "[EMAIL] [PHONE] [NUM] [DATE]", true, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			safe, reasons := GateCheck(tc.in)
			assert.Equal(t, tc.safe, safe)
			if tc.reason != "" {
				assert.Contains(t, reasons, tc.reason)
			} else {
				assert.Empty(t, reasons)
			}
		})
	}
}

// Hex digests in rendered output pass the gate as long as a letter
// breaks up the digit runs; a boundary-delimited all-digit prefix is
// indistinguishable from a long number and blocks. Known limitation.
func TestGateCheckHexDigestPrefixes(t *testing.T) {
	safe, reasons := GateCheck("Input fingerprint: 1234567890abcdef...")
	assert.True(t, safe, "reasons: %v", reasons)

	safe, reasons = GateCheck("Input fingerprint: 1234567890123456...")
	assert.False(t, safe)
	assert.Contains(t, reasons, ReasonLongNumber)
}

func TestGateCheckSkipsDashedDateAsBirthdate(t *testing.T) {
	safe, reasons := GateCheck("perioden 20250131 avser 2025-01-31 enligt plan")
	assert.True(t, safe, "reasons: %v", reasons)
}

// Paranoid masking must always pass the gate, for arbitrary input. This
// is the structural escalation invariant, not a heuristic.
func TestParanoidAlwaysPassesGate(t *testing.T) {
	inputs := []string{
		"test@example.com 070-123 45 67 19800101-1234",
		"Dok.Id 112233 och ID: 4567 samt 9876543210",
		"a@b.c x@y.1 kontonr 00000000000000",
		"Sökande Anna Ek\nMotpart Bo Alm\nring +46 70 123 45 67",
		"2026-01-06 13:24 igår idag imorgon 19780126",
		"blandat: 111-222 333 444, https://a.se/q?id=9, -1234",
		"",
		"bara text utan siffror",
	}
	for _, in := range inputs {
		masked := Mask(in, knox.LevelParanoid)
		safe, reasons := GateCheck(masked)
		require.True(t, safe, "input %q masked %q reasons %v", in, masked, reasons)
		require.Empty(t, reasons)
	}
}

func TestProgressiveEscalation(t *testing.T) {
	// Plain text stays at normal.
	res, err := Progressive("en vanlig anteckning utan känsligt innehåll")
	require.NoError(t, err)
	assert.Equal(t, knox.LevelNormal, res.Level)
	assert.True(t, res.Restrictions.AIAllowed)

	// Contact details are consumed at normal already; the literals are gone.
	res, err = Progressive("maila test@example.com eller ring 070-123 45 67")
	require.NoError(t, err)
	assert.NotContains(t, res.Masked, "test@example.com")
	assert.NotContains(t, res.Masked, "070-123 45 67")

	// A space-separated short personal number shape slips past normal's
	// (19|20)-prefixed rule and forces escalation.
	res, err = Progressive("pnr 800101 1234 i marginalen")
	require.NoError(t, err)
	assert.NotEqual(t, knox.LevelNormal, res.Level)
	assert.NotContains(t, res.Masked, "800101")
}

func TestProgressiveParanoidRestrictions(t *testing.T) {
	// An ID label with letters+digits glued to text survives strict's
	// rules in some shapes; whatever the path, the result must pass the
	// gate and paranoid must disable AI use and export.
	res, err := Progressive("född 19780126 utan datumkontext")
	require.NoError(t, err)
	safe, _ := GateCheck(res.Masked)
	assert.True(t, safe)
	if res.Level == knox.LevelParanoid {
		assert.False(t, res.Restrictions.AIAllowed)
		assert.False(t, res.Restrictions.ExportAllowed)
	}
}

func TestPrefixReasons(t *testing.T) {
	got := PrefixReasons("pii_gate_", []string{ReasonEmail, ReasonPhone})
	assert.Equal(t, []string{"pii_gate_email_detected", "pii_gate_phone_detected"}, got)
}

func TestMaskedOutputNeverGrowsTokensInsideTokens(t *testing.T) {
	out := Mask("[NUM] redan maskerad och 55555", knox.LevelStrict)
	assert.Equal(t, "[NUM] redan maskerad och [NUM]", out)
	assert.False(t, strings.Contains(out, "[[" ), "no nested tokens")
}
