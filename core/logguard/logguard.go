// Package logguard keeps content and source identifiers out of logs.
// Log metadata is counts, ids and codes; anything that could carry raw
// text or identify a source is dropped before it reaches a sink.
package logguard

import (
	"strings"

	"go.uber.org/zap"
)

// forbiddenContentKeys can carry raw text.
var forbiddenContentKeys = keySet(
	"body", "headers", "authorization", "cookie", "text", "content",
	"transcript", "note_body", "file_content", "payload", "query_params",
	"query", "segment_text", "transcript_text", "file_data", "raw_content",
	"original_text", "masked_text", "masked_body", "rendered_markdown",
)

// forbiddenSourceKeys can identify a source.
var forbiddenSourceKeys = keySet(
	"ip", "ip_address", "client_ip", "remote_addr", "x-forwarded-for",
	"x-real-ip", "user_agent", "user-agent", "referer", "referrer",
	"origin", "url", "uri", "filename", "filepath", "file_path",
	"original_filename", "querystring", "query_string", "cookies",
	"host", "hostname",
)

// maxStringLength caps string values in log metadata.
const maxStringLength = 512

const maxListItems = 10

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Forbidden reports whether a key may never appear in log metadata.
func Forbidden(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := forbiddenContentKeys[lower]; ok {
		return true
	}
	_, ok := forbiddenSourceKeys[lower]
	return ok
}

// Sanitize returns a copy of data safe for logging: forbidden keys are
// dropped, long strings truncated, nested maps recursed, lists capped.
func Sanitize(data map[string]any) map[string]any {
	sanitized := make(map[string]any, len(data))
	for key, value := range data {
		if Forbidden(key) {
			continue
		}
		sanitized[key] = sanitizeValue(value)
	}
	return sanitized
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		if len(v) > maxStringLength {
			return v[:maxStringLength] + "...[truncated]"
		}
		return v
	case map[string]any:
		return Sanitize(v)
	case []any:
		capped := v
		if len(capped) > maxListItems {
			capped = capped[:maxListItems]
		}
		out := make([]any, 0, len(capped))
		for _, item := range capped {
			out = append(out, sanitizeValue(item))
		}
		return out
	default:
		return v
	}
}

// Meta builds a zap field from already-safe metadata. The map passes
// through Sanitize, so a stray content key degrades to a dropped field
// instead of a leak.
func Meta(data map[string]any) zap.Field {
	return zap.Any("meta", Sanitize(data))
}
