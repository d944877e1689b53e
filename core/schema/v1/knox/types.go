// Package knox defines the wire and persistence types of the compile
// pipeline. Types here carry no behavior beyond ordering helpers; nothing
// in this package ever holds raw (unmasked) source text.
package knox

import "time"

type SanitizeLevel string

const (
	LevelNormal   SanitizeLevel = "normal"
	LevelStrict   SanitizeLevel = "strict"
	LevelParanoid SanitizeLevel = "paranoid"
)

// Rank orders levels normal < strict < paranoid. Unknown levels rank
// lowest so a malformed level can never satisfy a policy minimum.
func (l SanitizeLevel) Rank() int {
	switch l {
	case LevelNormal:
		return 1
	case LevelStrict:
		return 2
	case LevelParanoid:
		return 3
	default:
		return 0
	}
}

type PolicyMode string

const (
	ModeInternal PolicyMode = "internal"
	ModeExternal PolicyMode = "external"
)

// Policy is an immutable, data-driven compile policy record.
type Policy struct {
	PolicyID         string        `json:"policy_id" yaml:"policy_id"`
	PolicyVersion    string        `json:"policy_version" yaml:"policy_version"`
	RulesetHash      string        `json:"ruleset_hash" yaml:"ruleset_hash"`
	Mode             PolicyMode    `json:"mode" yaml:"mode"`
	SanitizeMinLevel SanitizeLevel `json:"sanitize_min_level" yaml:"sanitize_min_level"`
	QuoteLimitWords  int           `json:"quote_limit_words" yaml:"quote_limit_words"`
	DateStrictness   string        `json:"date_strictness" yaml:"date_strictness"`
	MaxBytes         int           `json:"max_bytes" yaml:"max_bytes"`
}

const (
	KindDocument = "document"
	KindNote     = "note"
	KindSource   = "source"
)

// ManifestEntry describes one included item by hash and metadata only.
type ManifestEntry struct {
	Kind          string        `json:"kind"`
	ID            string        `json:"id"`
	ContentHash   string        `json:"content_hash,omitempty"`
	SanitizeLevel SanitizeLevel `json:"sanitize_level,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// UsageRestrictions records what a sanitize level permits downstream.
type UsageRestrictions struct {
	AIAllowed     bool `json:"ai_allowed"`
	ExportAllowed bool `json:"export_allowed"`
}

// DocumentItem is a masked document eligible for compilation. MaskedText
// is always post-sanitization; the raw original never enters the pipeline.
type DocumentItem struct {
	ID              string        `json:"id"`
	ContentHash     string        `json:"content_hash"`
	SanitizeLevel   SanitizeLevel `json:"sanitize_level"`
	UpdatedAt       time.Time     `json:"updated_at"`
	MaskedText      string        `json:"masked_text"`
	CompileExcluded bool          `json:"compile_excluded,omitempty"`
	CompiledReport  bool          `json:"compiled_report,omitempty"`
}

type NoteItem struct {
	ID              string        `json:"id"`
	ContentHash     string        `json:"content_hash"`
	SanitizeLevel   SanitizeLevel `json:"sanitize_level"`
	UpdatedAt       time.Time     `json:"updated_at"`
	MaskedBody      string        `json:"masked_body"`
	CompileExcluded bool          `json:"compile_excluded,omitempty"`
}

// SourceItem is metadata only; the URL itself never leaves the manifest
// as anything but a hash.
type SourceItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	URLHash   string    `json:"url_hash,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProjectMetadata struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// InputPack is the deterministic unit handed to the input gate and the
// external compiler.
type InputPack struct {
	Project     ProjectMetadata `json:"project"`
	Documents   []DocumentItem  `json:"documents"`
	Notes       []NoteItem      `json:"notes"`
	Sources     []SourceItem    `json:"sources"`
	Policy      Policy          `json:"policy"`
	TemplateID  string          `json:"template_id"`
	Manifest    []ManifestEntry `json:"manifest"`
	Fingerprint string          `json:"fingerprint"`
}

// SourceTexts returns the masked texts the re-identification guard checks
// the compiled output against.
func (p InputPack) SourceTexts() []string {
	texts := make([]string, 0, len(p.Documents)+len(p.Notes))
	for _, doc := range p.Documents {
		texts = append(texts, doc.MaskedText)
	}
	for _, note := range p.Notes {
		texts = append(texts, note.MaskedBody)
	}
	return texts
}

type GateOutcome struct {
	Pass    bool     `json:"pass"`
	Reasons []string `json:"reasons"`
}

type GateResults struct {
	Input  GateOutcome `json:"input"`
	Output GateOutcome `json:"output"`
}

// Report is immutable once created. The idempotency key is
// (project_id, policy_id, template_id, engine_id, fingerprint).
type Report struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"project_id"`
	PolicyID         string          `json:"policy_id"`
	PolicyVersion    string          `json:"policy_version"`
	RulesetHash      string          `json:"ruleset_hash"`
	TemplateID       string          `json:"template_id"`
	EngineID         string          `json:"engine_id"`
	Fingerprint      string          `json:"fingerprint"`
	Manifest         []ManifestEntry `json:"manifest"`
	GateResults      GateResults     `json:"gate_results"`
	RenderedMarkdown string          `json:"rendered_markdown"`
	CreatedAt        time.Time       `json:"created_at"`
	LatencyMS        int64           `json:"latency_ms"`
}

type SelectionRef struct {
	Kind string `json:"type"`
	ID   string `json:"id"`
}

type SelectionSet struct {
	Include []SelectionRef `json:"include"`
	Exclude []SelectionRef `json:"exclude"`
}

type CompileRequest struct {
	ProjectID    string        `json:"project_id"`
	PolicyID     string        `json:"policy_id"`
	TemplateID   string        `json:"template_id"`
	Selection    *SelectionSet `json:"selection,omitempty"`
	SnapshotMode bool          `json:"snapshot_mode,omitempty"`
	Caller       string        `json:"-"`
}

// ErrorResponse is the metadata-only error envelope. Reasons are machine
// codes, never raw offending text.
type ErrorResponse struct {
	ErrorCode string   `json:"error_code"`
	Reasons   []string `json:"reasons"`
	Detail    string   `json:"detail,omitempty"`
}

type Theme struct {
	Name    string   `json:"name"`
	Bullets []string `json:"bullets"`
}

type Risk struct {
	Risk       string `json:"risk"`
	Mitigation string `json:"mitigation"`
}

// StructuredResult is the strict compiler response contract; unknown
// fields are rejected at the schema validation layer.
type StructuredResult struct {
	TemplateID        string   `json:"template_id"`
	Language          string   `json:"language"`
	Title             string   `json:"title"`
	ExecutiveSummary  string   `json:"executive_summary"`
	Themes            []Theme  `json:"themes"`
	TimelineHighLevel []string `json:"timeline_high_level"`
	Risks             []Risk   `json:"risks"`
	OpenQuestions     []string `json:"open_questions"`
	NextSteps         []string `json:"next_steps"`
	Confidence        string   `json:"confidence"`
}

// JobRecord is the metadata-only state of a background compile. It never
// stores text, only ids, status and timing.
type JobRecord struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	ProjectID string    `json:"project_id"`
	ReportID  string    `json:"report_id,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
