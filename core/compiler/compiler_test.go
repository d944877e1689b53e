package compiler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

func testPack() knox.InputPack {
	return knox.InputPack{
		Project: knox.ProjectMetadata{ID: "p1", Name: "Harbor"},
		Documents: []knox.DocumentItem{
			{ID: "d1", MaskedText: "The committee met on [DATE]."},
		},
		Notes: []knox.NoteItem{
			{ID: "n1", MaskedBody: "Ask about the [DATE] filing."},
		},
		Sources: []knox.SourceItem{
			{ID: "s1", Type: "link", Title: "Registry", URLHash: "deadbeef"},
		},
		Fingerprint: "f1f1f1f1",
	}
}

func testPolicy(mode knox.PolicyMode) knox.Policy {
	return knox.Policy{
		PolicyID:         string(mode),
		PolicyVersion:    "1.0",
		RulesetHash:      "abcd1234abcd1234",
		Mode:             mode,
		SanitizeMinLevel: knox.LevelStrict,
		QuoteLimitWords:  8,
		DateStrictness:   "strict",
		MaxBytes:         300_000,
	}
}

func TestBuildPayloadExcludesSources(t *testing.T) {
	payload := buildPayload(testPack(), testPolicy(knox.ModeExternal), "standard_v1", 0)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Registry")
	assert.NotContains(t, string(raw), "deadbeef")
	assert.Contains(t, string(raw), `"input_fingerprint":"f1f1f1f1"`)
	assert.NotContains(t, string(raw), "max_bytes")
}

func TestBuildPayloadCapsItemText(t *testing.T) {
	pack := testPack()
	pack.Documents[0].MaskedText = strings.Repeat("å", 50)
	payload := buildPayload(pack, testPolicy(knox.ModeInternal), "standard_v1", 10)
	assert.Equal(t, strings.Repeat("å", 10), payload.Documents[0].Text)
}

func TestFixtureBackendByMode(t *testing.T) {
	backend := NewFixtureBackend()
	assert.Equal(t, "fixture", backend.EngineID())

	internal, err := backend.Compile(context.Background(), testPack(), testPolicy(knox.ModeInternal), "standard_v1")
	require.NoError(t, err)
	assert.Equal(t, "Test Report - Internal", internal.Title)
	assert.Equal(t, "medium", internal.Confidence)

	external, err := backend.Compile(context.Background(), testPack(), testPolicy(knox.ModeExternal), "standard_v1")
	require.NoError(t, err)
	assert.Equal(t, "Test Report - External", external.Title)
	require.Len(t, external.Themes, 1)
	assert.Contains(t, external.Themes[0].Bullets[0], "verbatim quote")
}

func TestDecodeResultRejectsUnknownFields(t *testing.T) {
	raw := strings.Replace(internalPassFixture, `"confidence": "medium"`, `"confidence": "medium",
  "extra_field": true`, 1)
	_, err := DecodeResult([]byte(raw))
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeSchemaValidation, coreerrors.CodeOf(err))
}

func TestDecodeResultRejectsBadConfidence(t *testing.T) {
	raw := strings.Replace(internalPassFixture, `"confidence": "medium"`, `"confidence": "certain"`, 1)
	_, err := DecodeResult([]byte(raw))
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeSchemaValidation, coreerrors.CodeOf(err))
}

func TestDecodeResultRejectsMissingField(t *testing.T) {
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(internalPassFixture), &payload))
	delete(payload, "title")
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	_, err = DecodeResult(raw)
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeSchemaValidation, coreerrors.CodeOf(err))
}

func TestHTTPBackendSuccess(t *testing.T) {
	var gotPath string
	var gotPayload compilePayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(internalPassFixture))
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPOptions{Endpoint: server.URL})
	result, err := backend.Compile(context.Background(), testPack(), testPolicy(knox.ModeInternal), "standard_v1")
	require.NoError(t, err)

	assert.Equal(t, "/compile", gotPath)
	assert.Equal(t, "standard_v1", gotPayload.TemplateID)
	assert.Equal(t, "f1f1f1f1", gotPayload.Fingerprint)
	require.Len(t, gotPayload.Documents, 1)
	assert.Equal(t, "d1", gotPayload.Documents[0].ID)
	assert.Equal(t, "Test Report - Internal", result.Title)
	assert.Equal(t, "remote", backend.EngineID())
}

func TestHTTPBackendNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPOptions{Endpoint: server.URL})
	_, err := backend.Compile(context.Background(), testPack(), testPolicy(knox.ModeInternal), "standard_v1")
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeRemoteError, coreerrors.CodeOf(err))
	assert.Equal(t, []string{"http_status_502"}, coreerrors.ReasonsOf(err))
	// the body never leaks into the error
	assert.NotContains(t, err.Error(), "boom")
}

func TestHTTPBackendInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPOptions{Endpoint: server.URL})
	_, err := backend.Compile(context.Background(), testPack(), testPolicy(knox.ModeInternal), "standard_v1")
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeRemoteError, coreerrors.CodeOf(err))
	assert.Equal(t, []string{"invalid_json_response"}, coreerrors.ReasonsOf(err))
}

func TestHTTPBackendTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPOptions{Endpoint: server.URL, Timeout: 50 * time.Millisecond})
	_, err := backend.Compile(context.Background(), testPack(), testPolicy(knox.ModeInternal), "standard_v1")
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeRemoteError, coreerrors.CodeOf(err))
	assert.Equal(t, []string{"timeout"}, coreerrors.ReasonsOf(err))
	assert.True(t, coreerrors.RetryableOf(err))
}

func TestHTTPBackendSchemaMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"template_id": "standard_v1"}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(HTTPOptions{Endpoint: server.URL})
	_, err := backend.Compile(context.Background(), testPack(), testPolicy(knox.ModeInternal), "standard_v1")
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeSchemaValidation, coreerrors.CodeOf(err))
}
