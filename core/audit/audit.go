// Package audit keeps a metadata-only JSONL trail of compile attempts.
// Events carry identifiers, fingerprints and reason codes, never item
// text or rendered markdown. Multiple processes may share one trail
// file; appends take a cross-process lock and fsync before returning.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockTimeout    = 30 * time.Second
	lockRetry      = 10 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
)

// Event is one compile attempt outcome.
type Event struct {
	Time        string   `json:"time"`
	Outcome     string   `json:"outcome"`
	Caller      string   `json:"caller,omitempty"`
	ProjectID   string   `json:"project_id"`
	PolicyID    string   `json:"policy_id"`
	TemplateID  string   `json:"template_id"`
	EngineID    string   `json:"engine_id,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	ReportID    string   `json:"report_id,omitempty"`
	ErrorCode   string   `json:"error_code,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
	Replayed    bool     `json:"replayed,omitempty"`
	LatencyMS   int64    `json:"latency_ms"`
}

const (
	OutcomeCompiled = "compiled"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
)

// Trail appends events to one JSONL file.
type Trail struct {
	path string
}

// Open prepares a trail at path. The file and its directory are created
// on first record.
func Open(path string) (*Trail, error) {
	clean := filepath.Clean(path)
	if !filepath.IsLocal(clean) && !filepath.IsAbs(clean) {
		return nil, fmt.Errorf("audit path must be local relative or absolute")
	}
	return &Trail{path: clean}, nil
}

// Record stamps the event and appends it as one line. The file is
// fsynced before Record returns so a crash never loses acknowledged
// events.
func (t *Trail) Record(event Event) error {
	if event.Time == "" {
		event.Time = time.Now().UTC().Format(time.RFC3339Nano)
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return t.appendLine(line)
}

func (t *Trail) appendLine(line []byte) error {
	parent := filepath.Dir(t.path)
	if parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create audit directory: %w", err)
		}
	}
	payload := append(append(make([]byte, 0, len(line)+1), line...), '\n')

	return t.withLock(func() error {
		// #nosec G304 -- audit path is explicit local configuration.
		file, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit file: %w", err)
		}
		defer func() {
			_ = file.Close()
		}()
		if _, err := file.Write(payload); err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync audit file: %w", err)
		}
		return nil
	})
}

// withLock serializes appends across processes with an exclusive lock
// file. A lock older than lockStaleAfter is treated as abandoned.
func (t *Trail) withLock(fn func() error) error {
	lockPath := t.path + ".lock"
	start := time.Now()
	for {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = lockFile.Close()
			defer func() {
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire audit lock: %w", err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil &&
			time.Since(info.ModTime()) > lockStaleAfter {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Since(start) >= lockTimeout {
			return fmt.Errorf("audit lock timeout")
		}
		time.Sleep(lockRetry)
	}
}
