package pack

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/DanielWarg/fortknox/core/jcs"
	"github.com/DanielWarg/fortknox/core/sanitize"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

// MemoryLibrary is an in-memory Library. It serves projects loaded from
// a YAML file or seeded directly in tests.
type MemoryLibrary struct {
	projects  map[string]knox.ProjectMetadata
	documents map[string][]knox.DocumentItem
	notes     map[string][]knox.NoteItem
	sources   map[string][]knox.SourceItem
}

func NewMemoryLibrary() *MemoryLibrary {
	return &MemoryLibrary{
		projects:  map[string]knox.ProjectMetadata{},
		documents: map[string][]knox.DocumentItem{},
		notes:     map[string][]knox.NoteItem{},
		sources:   map[string][]knox.SourceItem{},
	}
}

func (m *MemoryLibrary) AddProject(project knox.ProjectMetadata) {
	m.projects[project.ID] = project
}

func (m *MemoryLibrary) AddDocument(projectID string, doc knox.DocumentItem) {
	m.documents[projectID] = append(m.documents[projectID], doc)
}

func (m *MemoryLibrary) AddNote(projectID string, note knox.NoteItem) {
	m.notes[projectID] = append(m.notes[projectID], note)
}

func (m *MemoryLibrary) AddSource(projectID string, src knox.SourceItem) {
	m.sources[projectID] = append(m.sources[projectID], src)
}

// ProjectIDs returns every loaded project id, sorted.
func (m *MemoryLibrary) ProjectIDs() []string {
	ids := make([]string, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryLibrary) Project(_ context.Context, projectID string) (knox.ProjectMetadata, error) {
	project, ok := m.projects[projectID]
	if !ok {
		return knox.ProjectMetadata{}, fmt.Errorf("unknown project: %s", projectID)
	}
	return project, nil
}

func (m *MemoryLibrary) Documents(_ context.Context, projectID string) ([]knox.DocumentItem, error) {
	items := append([]knox.DocumentItem(nil), m.documents[projectID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *MemoryLibrary) Notes(_ context.Context, projectID string) ([]knox.NoteItem, error) {
	items := append([]knox.NoteItem(nil), m.notes[projectID]...)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *MemoryLibrary) Sources(_ context.Context, projectID string) ([]knox.SourceItem, error) {
	items := append([]knox.SourceItem(nil), m.sources[projectID]...)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

type projectsFile struct {
	Projects []projectEntry `yaml:"projects"`
}

type projectEntry struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Tags      []string      `yaml:"tags"`
	Status    string        `yaml:"status"`
	CreatedAt time.Time     `yaml:"created_at"`
	Documents []textEntry   `yaml:"documents"`
	Notes     []textEntry   `yaml:"notes"`
	Sources   []sourceEntry `yaml:"sources"`
}

type textEntry struct {
	ID              string    `yaml:"id"`
	Text            string    `yaml:"text"`
	UpdatedAt       time.Time `yaml:"updated_at"`
	CompileExcluded bool      `yaml:"compile_excluded"`
	CompiledReport  bool      `yaml:"compiled_report"`
}

type sourceEntry struct {
	ID        string    `yaml:"id"`
	Type      string    `yaml:"type"`
	Title     string    `yaml:"title"`
	URL       string    `yaml:"url"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// LoadProjectsFile reads a YAML project corpus and sanitizes every text
// through progressive masking before it enters the library. Raw text
// exists only inside this function.
func LoadProjectsFile(path string) (*MemoryLibrary, error) {
	// #nosec G304 -- projects path is explicit local configuration.
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read projects file: %w", err)
	}
	var parsed projectsFile
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("parse projects yaml: %w", err)
	}

	lib := NewMemoryLibrary()
	for _, entry := range parsed.Projects {
		if entry.ID == "" {
			return nil, fmt.Errorf("project entry missing id")
		}
		lib.AddProject(knox.ProjectMetadata{
			ID:        entry.ID,
			Name:      entry.Name,
			Tags:      append([]string{}, entry.Tags...),
			Status:    entry.Status,
			CreatedAt: entry.CreatedAt.UTC(),
		})
		for _, doc := range entry.Documents {
			masked, err := sanitize.Progressive(doc.Text)
			if err != nil {
				return nil, fmt.Errorf("sanitize document %s: %w", doc.ID, err)
			}
			lib.AddDocument(entry.ID, knox.DocumentItem{
				ID:              doc.ID,
				ContentHash:     jcs.DigestText(masked.Masked),
				SanitizeLevel:   masked.Level,
				UpdatedAt:       doc.UpdatedAt.UTC(),
				MaskedText:      masked.Masked,
				CompileExcluded: doc.CompileExcluded,
				CompiledReport:  doc.CompiledReport,
			})
		}
		for _, note := range entry.Notes {
			masked, err := sanitize.Progressive(note.Text)
			if err != nil {
				return nil, fmt.Errorf("sanitize note %s: %w", note.ID, err)
			}
			lib.AddNote(entry.ID, knox.NoteItem{
				ID:              note.ID,
				ContentHash:     jcs.DigestText(masked.Masked),
				SanitizeLevel:   masked.Level,
				UpdatedAt:       note.UpdatedAt.UTC(),
				MaskedBody:      masked.Masked,
				CompileExcluded: note.CompileExcluded,
			})
		}
		for _, src := range entry.Sources {
			item := knox.SourceItem{
				ID:        src.ID,
				Type:      src.Type,
				Title:     src.Title,
				UpdatedAt: src.UpdatedAt.UTC(),
			}
			if src.URL != "" {
				item.URLHash = jcs.DigestText(src.URL)
			}
			lib.AddSource(entry.ID, item)
		}
	}
	return lib, nil
}
