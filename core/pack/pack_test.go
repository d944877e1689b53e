package pack

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

func seededLibrary(t *testing.T) *MemoryLibrary {
	t.Helper()
	lib := NewMemoryLibrary()
	lib.AddProject(knox.ProjectMetadata{
		ID:        "p1",
		Name:      "Harbor expansion",
		Tags:      []string{"infrastructure"},
		Status:    "active",
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	lib.AddDocument("p1", knox.DocumentItem{
		ID:            "d1",
		SanitizeLevel: knox.LevelStrict,
		UpdatedAt:     time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
		MaskedText:    "The committee met on [DATE] to review the permits.",
	})
	lib.AddDocument("p1", knox.DocumentItem{
		ID:              "d2",
		SanitizeLevel:   knox.LevelStrict,
		UpdatedAt:       time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC),
		MaskedText:      "Excluded from compiles.",
		CompileExcluded: true,
	})
	lib.AddDocument("p1", knox.DocumentItem{
		ID:             "d3",
		SanitizeLevel:  knox.LevelStrict,
		UpdatedAt:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		MaskedText:     "A previously compiled report.",
		CompiledReport: true,
	})
	lib.AddNote("p1", knox.NoteItem{
		ID:            "n1",
		SanitizeLevel: knox.LevelStrict,
		UpdatedAt:     time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC),
		MaskedBody:    "Follow up with the surveyor about the [DATE] filing.",
	})
	lib.AddSource("p1", knox.SourceItem{
		ID:        "s1",
		Type:      "link",
		Title:     "Municipal registry",
		URLHash:   "abc123",
		UpdatedAt: time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC),
	})
	return lib
}

func testPolicy() knox.Policy {
	return knox.Policy{
		PolicyID:         "internal",
		PolicyVersion:    "1.0",
		Mode:             knox.ModeInternal,
		SanitizeMinLevel: knox.LevelNormal,
		QuoteLimitWords:  8,
		MaxBytes:         800_000,
	}
}

func TestBuildFiltersAndFingerprints(t *testing.T) {
	lib := seededLibrary(t)
	pack, err := Build(context.Background(), lib, BuildOptions{
		ProjectID:  "p1",
		Policy:     testPolicy(),
		TemplateID: "standard_v1",
	})
	require.NoError(t, err)

	require.Len(t, pack.Documents, 1)
	assert.Equal(t, "d1", pack.Documents[0].ID)
	require.Len(t, pack.Notes, 1)
	require.Len(t, pack.Sources, 1)

	// manifest sorted by (kind, id): document, note, source
	require.Len(t, pack.Manifest, 3)
	assert.Equal(t, knox.KindDocument, pack.Manifest[0].Kind)
	assert.Equal(t, knox.KindNote, pack.Manifest[1].Kind)
	assert.Equal(t, knox.KindSource, pack.Manifest[2].Kind)

	assert.Len(t, pack.Fingerprint, 64)
	assert.NotEmpty(t, pack.Documents[0].ContentHash)
	assert.NotEmpty(t, pack.Notes[0].ContentHash)
}

func TestBuildFingerprintIsStable(t *testing.T) {
	opts := BuildOptions{ProjectID: "p1", Policy: testPolicy(), TemplateID: "standard_v1"}
	a, err := Build(context.Background(), seededLibrary(t), opts)
	require.NoError(t, err)
	b, err := Build(context.Background(), seededLibrary(t), opts)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestBuildFingerprintChangesWithContent(t *testing.T) {
	opts := BuildOptions{ProjectID: "p1", Policy: testPolicy(), TemplateID: "standard_v1"}
	a, err := Build(context.Background(), seededLibrary(t), opts)
	require.NoError(t, err)

	lib := seededLibrary(t)
	lib.AddNote("p1", knox.NoteItem{
		ID:            "n2",
		SanitizeLevel: knox.LevelStrict,
		UpdatedAt:     time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
		MaskedBody:    "New observation.",
	})
	b, err := Build(context.Background(), lib, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}

func TestBuildSelection(t *testing.T) {
	lib := seededLibrary(t)
	lib.AddDocument("p1", knox.DocumentItem{
		ID:            "d4",
		SanitizeLevel: knox.LevelStrict,
		UpdatedAt:     time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC),
		MaskedText:    "Second eligible document.",
	})

	t.Run("include narrows a kind", func(t *testing.T) {
		pack, err := Build(context.Background(), lib, BuildOptions{
			ProjectID: "p1",
			Policy:    testPolicy(),
			Selection: &knox.SelectionSet{
				Include: []knox.SelectionRef{{Kind: knox.KindDocument, ID: "d4"}},
			},
		})
		require.NoError(t, err)
		require.Len(t, pack.Documents, 1)
		assert.Equal(t, "d4", pack.Documents[0].ID)
		// notes untouched: no include refs for that kind
		assert.Len(t, pack.Notes, 1)
	})

	t.Run("exclude removes item", func(t *testing.T) {
		pack, err := Build(context.Background(), lib, BuildOptions{
			ProjectID: "p1",
			Policy:    testPolicy(),
			Selection: &knox.SelectionSet{
				Exclude: []knox.SelectionRef{{Kind: knox.KindNote, ID: "n1"}},
			},
		})
		require.NoError(t, err)
		assert.Len(t, pack.Documents, 2)
		assert.Empty(t, pack.Notes)
	})
}

func TestBuildEmptyInputSet(t *testing.T) {
	lib := NewMemoryLibrary()
	lib.AddProject(knox.ProjectMetadata{ID: "empty", Name: "Empty", Status: "active"})
	lib.AddSource("empty", knox.SourceItem{ID: "s1", Type: "link", Title: "Only a source"})

	_, err := Build(context.Background(), lib, BuildOptions{ProjectID: "empty", Policy: testPolicy()})
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeEmptyInputSet, coreerrors.CodeOf(err))
	assert.Equal(t, []string{"no_compilable_items"}, coreerrors.ReasonsOf(err))
}

func TestBuildUnknownProject(t *testing.T) {
	_, err := Build(context.Background(), NewMemoryLibrary(), BuildOptions{ProjectID: "missing", Policy: testPolicy()})
	require.Error(t, err)
	assert.Empty(t, coreerrors.CodeOf(err))
}

func TestLoadProjectsFileSanitizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.yaml")
	content := `projects:
  - id: p1
    name: Harbor expansion
    status: active
    created_at: 2026-01-02T00:00:00Z
    documents:
      - id: d1
        text: "Kontakta anna.svensson@example.com om mötet."
        updated_at: 2026-01-03T00:00:00Z
    notes:
      - id: n1
        text: "Ring 070-123 45 67 före fredag."
        updated_at: 2026-01-04T00:00:00Z
    sources:
      - id: s1
        type: link
        title: Registry
        url: https://example.com/registry
        updated_at: 2026-01-05T00:00:00Z
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	lib, err := LoadProjectsFile(path)
	require.NoError(t, err)

	docs, err := lib.Documents(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.NotContains(t, docs[0].MaskedText, "anna.svensson@example.com")
	assert.Contains(t, docs[0].MaskedText, "[EMAIL]")
	assert.NotEmpty(t, docs[0].ContentHash)

	notes, err := lib.Notes(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.NotContains(t, notes[0].MaskedBody, "070-123 45 67")

	sources, err := lib.Sources(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.NotEmpty(t, sources[0].URLHash)
	assert.NotContains(t, sources[0].URLHash, "example.com")
}
