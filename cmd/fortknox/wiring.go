package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/DanielWarg/fortknox/core/audit"
	"github.com/DanielWarg/fortknox/core/compiler"
	"github.com/DanielWarg/fortknox/core/config"
	"github.com/DanielWarg/fortknox/core/pack"
	"github.com/DanielWarg/fortknox/core/pipeline"
	"github.com/DanielWarg/fortknox/core/policy"
	"github.com/DanielWarg/fortknox/core/store"
)

// buildPipeline assembles the full service from configuration. The
// returned store must be closed by the caller.
func buildPipeline(cfg config.Config, log *zap.Logger) (*pipeline.Service, *store.Store, error) {
	if cfg.ProjectsPath == "" {
		return nil, nil, fmt.Errorf("projects_path is required (set FORTKNOX_PROJECTS_PATH or projects_path in config)")
	}
	library, err := pack.LoadProjectsFile(cfg.ProjectsPath)
	if err != nil {
		return nil, nil, err
	}

	registry, err := policy.Builtin()
	if err != nil {
		return nil, nil, err
	}
	if cfg.PolicyPath != "" {
		if err := registry.LoadFile(cfg.PolicyPath); err != nil {
			return nil, nil, err
		}
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	var backend compiler.Backend
	switch {
	case cfg.TestMode:
		backend = compiler.NewFixtureBackend()
	case cfg.RemoteURL != "":
		backend = compiler.NewHTTPBackend(compiler.HTTPOptions{
			Endpoint:     cfg.RemoteURL,
			EngineID:     cfg.EngineID,
			Timeout:      cfg.RemoteTimeoutDuration(),
			MaxItemChars: cfg.MaxItemChars,
			Log:          log,
		})
	default:
		// offline: replays of stored reports still work
		backend = nil
	}

	var trail *audit.Trail
	if cfg.AuditPath != "" {
		trail, err = audit.Open(cfg.AuditPath)
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
	}

	svc := pipeline.New(pipeline.Options{
		Library:         library,
		Policies:        registry,
		Backend:         backend,
		Store:           st,
		OfflineEngineID: cfg.EngineID,
		Audit:           trail,
		Log:             log,
	})
	return svc, st, nil
}
