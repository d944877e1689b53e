// Package compiler is the client side of the external-compiler contract.
// The compiler is a black box: it consumes a JSON payload of masked
// texts and returns JSON matching the strict result schema, or fails.
// Nothing in this package ever logs or returns response bodies.
package compiler

import (
	"context"

	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

// Backend compiles an input pack into a structured result. EngineID
// identifies the producing engine and participates in the idempotency
// key, so a fixture result can never satisfy a replay of a remote one.
type Backend interface {
	Compile(ctx context.Context, pack knox.InputPack, policy knox.Policy, templateID string) (knox.StructuredResult, error)
	EngineID() string
}

// payloadItem is one masked text on the wire.
type payloadItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// payloadPolicy is the policy subset the compiler sees. MaxBytes is a
// gate concern and stays home.
type payloadPolicy struct {
	PolicyID         string `json:"policy_id"`
	PolicyVersion    string `json:"policy_version"`
	RulesetHash      string `json:"ruleset_hash"`
	Mode             string `json:"mode"`
	SanitizeMinLevel string `json:"sanitize_min_level"`
	QuoteLimitWords  int    `json:"quote_limit_words"`
	DateStrictness   string `json:"date_strictness"`
}

type compilePayload struct {
	Policy      payloadPolicy `json:"policy"`
	TemplateID  string        `json:"template_id"`
	Fingerprint string        `json:"input_fingerprint"`
	Documents   []payloadItem `json:"documents"`
	Notes       []payloadItem `json:"notes"`
}

// buildPayload assembles the wire payload. Sources are metadata-only
// and never leave the process. maxItemChars > 0 truncates each text.
func buildPayload(pack knox.InputPack, policy knox.Policy, templateID string, maxItemChars int) compilePayload {
	payload := compilePayload{
		Policy: payloadPolicy{
			PolicyID:         policy.PolicyID,
			PolicyVersion:    policy.PolicyVersion,
			RulesetHash:      policy.RulesetHash,
			Mode:             string(policy.Mode),
			SanitizeMinLevel: string(policy.SanitizeMinLevel),
			QuoteLimitWords:  policy.QuoteLimitWords,
			DateStrictness:   policy.DateStrictness,
		},
		TemplateID:  templateID,
		Fingerprint: pack.Fingerprint,
		Documents:   make([]payloadItem, 0, len(pack.Documents)),
		Notes:       make([]payloadItem, 0, len(pack.Notes)),
	}
	for _, doc := range pack.Documents {
		payload.Documents = append(payload.Documents, payloadItem{ID: doc.ID, Text: capText(doc.MaskedText, maxItemChars)})
	}
	for _, note := range pack.Notes {
		payload.Notes = append(payload.Notes, payloadItem{ID: note.ID, Text: capText(note.MaskedBody, maxItemChars)})
	}
	return payload
}

func capText(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
