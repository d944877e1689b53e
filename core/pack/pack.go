// Package pack builds the deterministic input pack a compile runs on.
// The pack carries masked text only; its identity is the fingerprint of
// its manifest, so two packs with identical content hash identically
// regardless of when or where they were built.
package pack

import (
	"context"
	"fmt"
	"sort"

	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/jcs"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

// Library provides the masked project corpus a pack is built from.
// Implementations must return items already sanitized; raw text never
// crosses this interface.
type Library interface {
	Project(ctx context.Context, projectID string) (knox.ProjectMetadata, error)
	Documents(ctx context.Context, projectID string) ([]knox.DocumentItem, error)
	Notes(ctx context.Context, projectID string) ([]knox.NoteItem, error)
	Sources(ctx context.Context, projectID string) ([]knox.SourceItem, error)
}

// BuildOptions names the inputs that shape a pack.
type BuildOptions struct {
	ProjectID  string
	Policy     knox.Policy
	TemplateID string
	Selection  *knox.SelectionSet
}

// Build assembles the input pack: load, filter, select, hash, manifest,
// fingerprint. An empty result (no documents and no notes after
// filtering) is EMPTY_INPUT_SET, not a pack.
func Build(ctx context.Context, lib Library, opts BuildOptions) (knox.InputPack, error) {
	project, err := lib.Project(ctx, opts.ProjectID)
	if err != nil {
		return knox.InputPack{}, fmt.Errorf("load project %s: %w", opts.ProjectID, err)
	}

	documents, err := lib.Documents(ctx, opts.ProjectID)
	if err != nil {
		return knox.InputPack{}, fmt.Errorf("load documents: %w", err)
	}
	notes, err := lib.Notes(ctx, opts.ProjectID)
	if err != nil {
		return knox.InputPack{}, fmt.Errorf("load notes: %w", err)
	}
	sources, err := lib.Sources(ctx, opts.ProjectID)
	if err != nil {
		return knox.InputPack{}, fmt.Errorf("load sources: %w", err)
	}

	documents = selectDocuments(filterDocuments(documents), opts.Selection)
	notes = selectNotes(filterNotes(notes), opts.Selection)
	sources = selectSources(sources, opts.Selection)

	if len(documents)+len(notes) == 0 {
		return knox.InputPack{}, coreerrors.New(
			coreerrors.CategoryInvalidInput,
			coreerrors.CodeEmptyInputSet,
			[]string{"no_compilable_items"},
			"project has no documents or notes eligible for compilation",
			false,
		)
	}

	for i := range documents {
		if documents[i].ContentHash == "" {
			documents[i].ContentHash = jcs.DigestText(documents[i].MaskedText)
		}
	}
	for i := range notes {
		if notes[i].ContentHash == "" {
			notes[i].ContentHash = jcs.DigestText(notes[i].MaskedBody)
		}
	}

	manifest := buildManifest(documents, notes, sources)
	fingerprint, err := jcs.Fingerprint(manifest)
	if err != nil {
		return knox.InputPack{}, coreerrors.Wrap(err, coreerrors.CategoryInternal, coreerrors.CodeInternal, false)
	}

	return knox.InputPack{
		Project:     project,
		Documents:   documents,
		Notes:       notes,
		Sources:     sources,
		Policy:      opts.Policy,
		TemplateID:  opts.TemplateID,
		Manifest:    manifest,
		Fingerprint: fingerprint,
	}, nil
}

func filterDocuments(items []knox.DocumentItem) []knox.DocumentItem {
	kept := make([]knox.DocumentItem, 0, len(items))
	for _, item := range items {
		if item.CompileExcluded || item.CompiledReport {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func filterNotes(items []knox.NoteItem) []knox.NoteItem {
	kept := make([]knox.NoteItem, 0, len(items))
	for _, item := range items {
		if item.CompileExcluded {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// selected applies per-kind selection semantics: an empty include set for
// a kind means every item of that kind, then excludes are removed.
func selected(sel *knox.SelectionSet, kind, id string) bool {
	if sel == nil {
		return true
	}
	hasIncludeForKind := false
	included := false
	for _, ref := range sel.Include {
		if ref.Kind != kind {
			continue
		}
		hasIncludeForKind = true
		if ref.ID == id {
			included = true
		}
	}
	if hasIncludeForKind && !included {
		return false
	}
	for _, ref := range sel.Exclude {
		if ref.Kind == kind && ref.ID == id {
			return false
		}
	}
	return true
}

func selectDocuments(items []knox.DocumentItem, sel *knox.SelectionSet) []knox.DocumentItem {
	kept := make([]knox.DocumentItem, 0, len(items))
	for _, item := range items {
		if selected(sel, knox.KindDocument, item.ID) {
			kept = append(kept, item)
		}
	}
	return kept
}

func selectNotes(items []knox.NoteItem, sel *knox.SelectionSet) []knox.NoteItem {
	kept := make([]knox.NoteItem, 0, len(items))
	for _, item := range items {
		if selected(sel, knox.KindNote, item.ID) {
			kept = append(kept, item)
		}
	}
	return kept
}

func selectSources(items []knox.SourceItem, sel *knox.SelectionSet) []knox.SourceItem {
	kept := make([]knox.SourceItem, 0, len(items))
	for _, item := range items {
		if selected(sel, knox.KindSource, item.ID) {
			kept = append(kept, item)
		}
	}
	return kept
}

func buildManifest(documents []knox.DocumentItem, notes []knox.NoteItem, sources []knox.SourceItem) []knox.ManifestEntry {
	manifest := make([]knox.ManifestEntry, 0, len(documents)+len(notes)+len(sources))
	for _, doc := range documents {
		manifest = append(manifest, knox.ManifestEntry{
			Kind:          knox.KindDocument,
			ID:            doc.ID,
			ContentHash:   doc.ContentHash,
			SanitizeLevel: doc.SanitizeLevel,
			UpdatedAt:     doc.UpdatedAt.UTC(),
		})
	}
	for _, note := range notes {
		manifest = append(manifest, knox.ManifestEntry{
			Kind:          knox.KindNote,
			ID:            note.ID,
			ContentHash:   note.ContentHash,
			SanitizeLevel: note.SanitizeLevel,
			UpdatedAt:     note.UpdatedAt.UTC(),
		})
	}
	for _, src := range sources {
		manifest = append(manifest, knox.ManifestEntry{
			Kind:        knox.KindSource,
			ID:          src.ID,
			ContentHash: src.URLHash,
			UpdatedAt:   src.UpdatedAt.UTC(),
		})
	}
	sort.Slice(manifest, func(i, j int) bool {
		if manifest[i].Kind != manifest[j].Kind {
			return manifest[i].Kind < manifest[j].Kind
		}
		return manifest[i].ID < manifest[j].ID
	})
	return manifest
}
