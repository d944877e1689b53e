package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAppendsOneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, trail.Record(Event{Outcome: OutcomeCompiled, ProjectID: "p1", PolicyID: "internal", TemplateID: "standard_v1", ReportID: "r1"}))
	require.NoError(t, trail.Record(Event{Outcome: OutcomeRejected, ProjectID: "p1", PolicyID: "external", TemplateID: "standard_v1", ErrorCode: "INPUT_GATE_FAILED"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, OutcomeCompiled, first.Outcome)
	assert.NotEmpty(t, first.Time)

	var second Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "INPUT_GATE_FAILED", second.ErrorCode)
}

func TestConcurrentRecordsStayLineIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	trail, err := Open(path)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, trail.Record(Event{Outcome: OutcomeCompiled, ProjectID: "p1", PolicyID: "internal", TemplateID: "standard_v1"}))
		}(i)
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, writers)
	for _, line := range lines {
		var event Event
		assert.NoError(t, json.Unmarshal([]byte(line), &event))
	}
}

func TestOpenRejectsTraversalPath(t *testing.T) {
	_, err := Open(filepath.Join("..", "escape.jsonl"))
	assert.Error(t, err)
}

func TestRecordCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.jsonl")
	trail, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, trail.Record(Event{Outcome: OutcomeReplayed, ProjectID: "p1", PolicyID: "internal", TemplateID: "standard_v1", Replayed: true}))

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
