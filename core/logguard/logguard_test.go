package logguard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDropsContentKeys(t *testing.T) {
	out := Sanitize(map[string]any{
		"project_id":  "p1",
		"masked_text": "should never be logged",
		"Body":        "also content",
		"doc_count":   3,
	})
	assert.Equal(t, "p1", out["project_id"])
	assert.Equal(t, 3, out["doc_count"])
	assert.NotContains(t, out, "masked_text")
	assert.NotContains(t, out, "Body")
}

func TestSanitizeDropsSourceKeys(t *testing.T) {
	out := Sanitize(map[string]any{
		"client_ip":  "203.0.113.9",
		"User-Agent": "curl/8.0",
		"status":     200,
	})
	assert.NotContains(t, out, "client_ip")
	assert.NotContains(t, out, "User-Agent")
	assert.Equal(t, 200, out["status"])
}

func TestSanitizeTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", 600)
	out := Sanitize(map[string]any{"detail": long})
	got, ok := out["detail"].(string)
	assert.True(t, ok)
	assert.True(t, strings.HasSuffix(got, "...[truncated]"))
	assert.Len(t, got, 512+len("...[truncated]"))
}

func TestSanitizeRecursesNestedMaps(t *testing.T) {
	out := Sanitize(map[string]any{
		"inner": map[string]any{
			"text":      "raw",
			"report_id": "r1",
		},
	})
	inner, ok := out["inner"].(map[string]any)
	assert.True(t, ok)
	assert.NotContains(t, inner, "text")
	assert.Equal(t, "r1", inner["report_id"])
}

func TestSanitizeCapsLists(t *testing.T) {
	items := make([]any, 0, 15)
	for i := 0; i < 15; i++ {
		items = append(items, i)
	}
	out := Sanitize(map[string]any{"ids": items})
	got, ok := out["ids"].([]any)
	assert.True(t, ok)
	assert.Len(t, got, 10)
}

func TestForbiddenIsCaseInsensitive(t *testing.T) {
	assert.True(t, Forbidden("TRANSCRIPT"))
	assert.True(t, Forbidden("X-Forwarded-For"))
	assert.False(t, Forbidden("fingerprint"))
	assert.False(t, Forbidden("latency_ms"))
}
