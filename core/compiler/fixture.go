package compiler

import (
	"context"

	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

// Fixture payloads are raw JSON so they exercise the same schema path
// as a real response. The external fixture carries a long distinctive
// phrase; seeding a source text with the same phrase provokes the
// output gate deterministically in tests.
const (
	internalPassFixture = `{
  "template_id": "standard_v1",
  "language": "en",
  "title": "Test Report - Internal",
  "executive_summary": "A fixture report for internal use.",
  "themes": [
    {"name": "Theme 1", "bullets": ["Observation one.", "Observation two."]}
  ],
  "timeline_high_level": ["Week 1: first event", "Week 2: second event"],
  "risks": [
    {"risk": "Risk one", "mitigation": "Mitigation one"}
  ],
  "open_questions": ["Question one?", "Question two?"],
  "next_steps": ["Step one", "Step two"],
  "confidence": "medium"
}`

	externalFailFixture = `{
  "template_id": "standard_v1",
  "language": "en",
  "title": "Test Report - External",
  "executive_summary": "A fixture report for external use carrying a long verbatim passage.",
  "themes": [
    {"name": "Theme 1", "bullets": ["this is a very long verbatim quote from the source that will trip quote detection because too many consecutive words match the input text"]}
  ],
  "timeline_high_level": ["2025-01-15: first event", "2025-01-16: second event"],
  "risks": [
    {"risk": "Risk one", "mitigation": "Mitigation one"}
  ],
  "open_questions": ["Question one?"],
  "next_steps": ["Step one"],
  "confidence": "low"
}`
)

// ExternalFixtureQuote is the verbatim passage inside the external
// fixture, exported so tests can seed a matching source text.
const ExternalFixtureQuote = "this is a very long verbatim quote from the source that will trip quote detection because too many consecutive words match the input text"

// FixtureBackend returns canonical payloads selected by policy mode,
// validated through the same schema path as remote responses.
type FixtureBackend struct{}

func NewFixtureBackend() *FixtureBackend { return &FixtureBackend{} }

func (f *FixtureBackend) EngineID() string { return "fixture" }

func (f *FixtureBackend) Compile(_ context.Context, _ knox.InputPack, policy knox.Policy, _ string) (knox.StructuredResult, error) {
	raw := internalPassFixture
	if policy.Mode == knox.ModeExternal {
		raw = externalFailFixture
	}
	return DecodeResult([]byte(raw))
}
