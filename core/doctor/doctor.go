// Package doctor runs local environment checks: configuration,
// project library, policy registry, database and backend wiring. It
// never calls the remote compiler.
package doctor

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/DanielWarg/fortknox/core/config"
	"github.com/DanielWarg/fortknox/core/pack"
	"github.com/DanielWarg/fortknox/core/policy"
	"github.com/DanielWarg/fortknox/core/store"
)

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FixCommand string `json:"fix_command,omitempty"`
}

type Result struct {
	CreatedAt   string   `json:"created_at"`
	Status      string   `json:"status"`
	Summary     string   `json:"summary"`
	FixCommands []string `json:"fix_commands"`
	Checks      []Check  `json:"checks"`
}

// Run executes every check against the loaded configuration. Checks
// never read item content aloud: messages carry paths and counts only.
func Run(cfg config.Config) Result {
	checks := []Check{
		checkProjects(cfg),
		checkPolicies(cfg),
		checkDatabase(cfg),
		checkBackend(cfg),
		checkRateLimit(cfg),
	}

	failed := 0
	warned := 0
	fixCommands := make([]string, 0, len(checks))
	seen := map[string]struct{}{}
	for _, check := range checks {
		switch check.Status {
		case statusFail:
			failed++
		case statusWarn:
			warned++
		}
		if check.FixCommand != "" {
			if _, ok := seen[check.FixCommand]; !ok {
				seen[check.FixCommand] = struct{}{}
				fixCommands = append(fixCommands, check.FixCommand)
			}
		}
	}

	status := statusPass
	if failed > 0 {
		status = statusFail
	} else if warned > 0 {
		status = statusWarn
	}
	sort.Strings(fixCommands)

	return Result{
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Status:      status,
		Summary:     fmt.Sprintf("doctor: status=%s failed=%d warned=%d", status, failed, warned),
		FixCommands: fixCommands,
		Checks:      checks,
	}
}

func checkProjects(cfg config.Config) Check {
	if cfg.ProjectsPath == "" {
		return Check{
			Name:       "projects",
			Status:     statusFail,
			Message:    "no projects file configured",
			FixCommand: "set FORTKNOX_PROJECTS_PATH or projects_path in the config file",
		}
	}
	library, err := pack.LoadProjectsFile(cfg.ProjectsPath)
	if err != nil {
		return Check{
			Name:    "projects",
			Status:  statusFail,
			Message: fmt.Sprintf("projects file failed to load: %v", err),
		}
	}
	ids := library.ProjectIDs()
	if len(ids) == 0 {
		return Check{
			Name:    "projects",
			Status:  statusWarn,
			Message: "projects file loaded but contains no projects",
		}
	}
	return Check{
		Name:    "projects",
		Status:  statusPass,
		Message: fmt.Sprintf("%d project(s) loaded from %s", len(ids), cfg.ProjectsPath),
	}
}

func checkPolicies(cfg config.Config) Check {
	registry, err := policy.Builtin()
	if err != nil {
		return Check{Name: "policies", Status: statusFail, Message: fmt.Sprintf("builtin policies failed to build: %v", err)}
	}
	if cfg.PolicyPath != "" {
		if err := registry.LoadFile(cfg.PolicyPath); err != nil {
			return Check{
				Name:    "policies",
				Status:  statusFail,
				Message: fmt.Sprintf("policy file %s failed to load: %v", cfg.PolicyPath, err),
			}
		}
	}
	return Check{
		Name:    "policies",
		Status:  statusPass,
		Message: fmt.Sprintf("%d policy record(s) available", len(registry.IDs())),
	}
}

func checkDatabase(cfg config.Config) Check {
	parent := filepath.Dir(cfg.DBPath)
	if parent != "." && parent != "" {
		if info, err := os.Stat(parent); err != nil || !info.IsDir() {
			return Check{
				Name:       "database",
				Status:     statusFail,
				Message:    fmt.Sprintf("database directory %s is not accessible", parent),
				FixCommand: fmt.Sprintf("mkdir -p %s", parent),
			}
		}
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return Check{
			Name:    "database",
			Status:  statusFail,
			Message: fmt.Sprintf("database failed to open: %v", err),
		}
	}
	_ = st.Close()
	return Check{
		Name:    "database",
		Status:  statusPass,
		Message: fmt.Sprintf("database opens at %s", cfg.DBPath),
	}
}

func checkBackend(cfg config.Config) Check {
	if cfg.TestMode {
		return Check{
			Name:    "backend",
			Status:  statusPass,
			Message: "test mode: fixture backend selected",
		}
	}
	if cfg.RemoteURL == "" {
		return Check{
			Name:       "backend",
			Status:     statusWarn,
			Message:    "offline: no remote compiler configured, only stored reports replay",
			FixCommand: "set FORTKNOX_REMOTE_URL or FORTKNOX_TESTMODE=1",
		}
	}
	parsed, err := url.Parse(cfg.RemoteURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Check{
			Name:    "backend",
			Status:  statusFail,
			Message: fmt.Sprintf("remote URL %q is not a valid absolute URL", cfg.RemoteURL),
		}
	}
	return Check{
		Name:    "backend",
		Status:  statusPass,
		Message: fmt.Sprintf("remote backend configured (%s, timeout %s)", parsed.Host, cfg.RemoteTimeoutDuration()),
	}
}

func checkRateLimit(cfg config.Config) Check {
	if cfg.CompilePerMin <= 0 {
		return Check{
			Name:       "rate_limit",
			Status:     statusWarn,
			Message:    "compile rate limiting is disabled",
			FixCommand: "set RATE_LIMIT_FORTKNOX_COMPILE_PER_MIN to a positive value",
		}
	}
	return Check{
		Name:    "rate_limit",
		Status:  statusPass,
		Message: fmt.Sprintf("compile limited to %d request(s) per caller per minute", cfg.CompilePerMin),
	}
}
