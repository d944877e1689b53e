package gate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

func internalPolicy() knox.Policy {
	return knox.Policy{
		PolicyID:         "internal",
		PolicyVersion:    "1.0",
		Mode:             knox.ModeInternal,
		SanitizeMinLevel: knox.LevelNormal,
		QuoteLimitWords:  8,
		MaxBytes:         800_000,
	}
}

func externalPolicy() knox.Policy {
	p := internalPolicy()
	p.PolicyID = "external"
	p.Mode = knox.ModeExternal
	p.SanitizeMinLevel = knox.LevelStrict
	p.MaxBytes = 300_000
	return p
}

func cleanPack() knox.InputPack {
	return knox.InputPack{
		Project: knox.ProjectMetadata{ID: "p1", Name: "Harbor", Status: "active"},
		Documents: []knox.DocumentItem{{
			ID:            "d1",
			ContentHash:   "hash-d1",
			SanitizeLevel: knox.LevelStrict,
			UpdatedAt:     time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
			MaskedText:    "The committee met on [DATE] to review permits.",
		}},
		Notes: []knox.NoteItem{{
			ID:            "n1",
			ContentHash:   "hash-n1",
			SanitizeLevel: knox.LevelStrict,
			UpdatedAt:     time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC),
			MaskedBody:    "Ask the surveyor about the [DATE] filing.",
		}},
	}
}

func TestInputPasses(t *testing.T) {
	ok, reasons := Input(cleanPack(), externalPolicy())
	assert.True(t, ok)
	assert.Empty(t, reasons)
}

func TestInputFlagsLowSanitizeLevel(t *testing.T) {
	pack := cleanPack()
	pack.Documents[0].SanitizeLevel = knox.LevelNormal
	ok, reasons := Input(pack, externalPolicy())
	assert.False(t, ok)
	assert.Contains(t, reasons, "document_d1_sanitize_level_too_low")

	// internal policy only requires normal
	ok, _ = Input(pack, internalPolicy())
	assert.True(t, ok)
}

func TestInputFlagsNoteLevelSeparately(t *testing.T) {
	pack := cleanPack()
	pack.Notes[0].SanitizeLevel = knox.LevelNormal
	ok, reasons := Input(pack, externalPolicy())
	assert.False(t, ok)
	assert.Equal(t, []string{"note_n1_sanitize_level_too_low"}, reasons)
}

func TestInputFlagsResidualPII(t *testing.T) {
	pack := cleanPack()
	pack.Notes[0].MaskedBody = "Contact anna.svensson@example.com directly."
	ok, reasons := Input(pack, internalPolicy())
	assert.False(t, ok)
	assert.Contains(t, reasons, "pii_gate_email_detected")
}

func TestInputFlagsOversizedPack(t *testing.T) {
	policy := internalPolicy()
	policy.MaxBytes = 200
	ok, reasons := Input(cleanPack(), policy)
	assert.False(t, ok)
	require.Len(t, reasons, 1)
	assert.True(t, strings.HasPrefix(reasons[0], "pack_size_exceeded_"))
	assert.True(t, strings.HasSuffix(reasons[0], "_200"))
}

func TestInputAccumulatesAllReasons(t *testing.T) {
	pack := cleanPack()
	pack.Documents[0].SanitizeLevel = knox.LevelNormal
	pack.Notes[0].MaskedBody = "Contact anna.svensson@example.com directly."
	policy := externalPolicy()
	policy.MaxBytes = 100

	ok, reasons := Input(pack, policy)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, len(reasons), 3)
	assert.True(t, sortedStrings(reasons))
}

func sortedStrings(values []string) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}

func TestOutputPassesCleanCandidate(t *testing.T) {
	sources := []string{"the committee reviewed the harbor permits during the spring session"}
	final, ok, reasons := Output("# Report\n\nA fresh summary of spring permit work.", sources, externalPolicy())
	assert.True(t, ok)
	assert.Empty(t, reasons)
	assert.Equal(t, "# Report\n\nA fresh summary of spring permit work.", final)
}

func TestOutputFlagsResidualPII(t *testing.T) {
	_, ok, reasons := Output("Reach anna.svensson@example.com for details.", nil, externalPolicy())
	assert.False(t, ok)
	assert.Contains(t, reasons, "pii_gate_email_detected")
}

func TestOutputRepairsQuote(t *testing.T) {
	source := "the committee reviewed the harbor permits during the spring session and adjourned early"
	candidate := "Finding: the committee reviewed the harbor permits during the spring session."

	final, ok, reasons := Output(candidate, []string{source}, externalPolicy())
	assert.True(t, ok, "expected repair to succeed, reasons: %v", reasons)
	assert.NotEqual(t, candidate, final)
	assert.Contains(t, final, "…")

	// wording is preserved, only the marker is new
	stripped := strings.Join(strings.Fields(strings.ReplaceAll(final, "…", " ")), " ")
	assert.Equal(t, strings.Join(strings.Fields(candidate), " "), stripped)
}

func TestOutputFailsClosedWhenPIIAndQuoteCombine(t *testing.T) {
	source := "one two three four five six seven eight nine ten"
	candidate := "one two three four five six seven eight nine ten, contact anna.svensson@example.com"

	_, ok, reasons := Output(candidate, []string{source}, externalPolicy())
	assert.False(t, ok)
	assert.Contains(t, reasons, "pii_gate_email_detected")
}
