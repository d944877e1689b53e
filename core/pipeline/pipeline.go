// Package pipeline runs one compile end to end: build the pack, gate
// it, check the idempotency store, call the compiler, gate the output
// and persist the report. The pipeline is synchronous per invocation
// and fail-closed at every checkpoint.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DanielWarg/fortknox/core/audit"
	"github.com/DanielWarg/fortknox/core/compiler"
	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/gate"
	"github.com/DanielWarg/fortknox/core/pack"
	"github.com/DanielWarg/fortknox/core/policy"
	"github.com/DanielWarg/fortknox/core/render"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
	"github.com/DanielWarg/fortknox/core/store"
)

// Options wires a Service. Backend may be nil: the pipeline is then
// offline and only idempotent replays succeed. OfflineEngineID names
// the engine replays are looked up under while offline.
type Options struct {
	Library         pack.Library
	Policies        *policy.Registry
	Backend         compiler.Backend
	Store           *store.Store
	OfflineEngineID string
	// Audit may be nil; the trail records metadata-only outcomes.
	Audit *audit.Trail
	Log   *zap.Logger
}

type Service struct {
	lib      pack.Library
	policies *policy.Registry
	backend  compiler.Backend
	store    *store.Store
	engineID string
	trail    *audit.Trail
	log      *zap.Logger
	group    singleflight.Group
}

func New(opts Options) *Service {
	engineID := opts.OfflineEngineID
	if opts.Backend != nil {
		engineID = opts.Backend.EngineID()
	}
	if engineID == "" {
		engineID = "remote"
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Service{
		lib:      opts.Library,
		policies: opts.Policies,
		backend:  opts.Backend,
		store:    opts.Store,
		engineID: engineID,
		trail:    opts.Audit,
		log:      opts.Log,
	}
}

func (s *Service) auditEvent(event audit.Event) {
	if s.trail == nil {
		return
	}
	if err := s.trail.Record(event); err != nil {
		s.log.Warn("audit append failed", zap.Error(err))
	}
}

func (s *Service) auditReject(req knox.CompileRequest, fingerprint string, err error, start time.Time) {
	s.auditEvent(audit.Event{
		Outcome:     audit.OutcomeRejected,
		Caller:      req.Caller,
		ProjectID:   req.ProjectID,
		PolicyID:    req.PolicyID,
		TemplateID:  req.TemplateID,
		EngineID:    s.engineID,
		Fingerprint: fingerprint,
		ErrorCode:   coreerrors.CodeOf(err),
		Reasons:     coreerrors.ReasonsOf(err),
		LatencyMS:   time.Since(start).Milliseconds(),
	})
}

// Compile runs the full pipeline for one request. Concurrent requests
// for the same idempotency tuple collapse onto one in-flight compile
// per process; the store itself does not enforce uniqueness.
func (s *Service) Compile(ctx context.Context, req knox.CompileRequest) (*knox.Report, error) {
	start := time.Now()

	pol, err := s.policies.Get(req.PolicyID)
	if err != nil {
		rejection := coreerrors.New(
			coreerrors.CategoryInvalidInput,
			coreerrors.CodeInputGateFailed,
			[]string{fmt.Sprintf("unknown_policy_%s", req.PolicyID)},
			"requested policy is not registered",
			false,
		)
		s.auditReject(req, "", rejection, start)
		return nil, rejection
	}

	inputPack, err := pack.Build(ctx, s.lib, pack.BuildOptions{
		ProjectID:  req.ProjectID,
		Policy:     pol,
		TemplateID: req.TemplateID,
		Selection:  req.Selection,
	})
	if err != nil {
		s.auditReject(req, "", err, start)
		return nil, err
	}

	if ok, reasons := gate.Input(inputPack, pol); !ok {
		s.log.Warn("input gate failed",
			zap.String("project_id", req.ProjectID),
			zap.String("policy_id", pol.PolicyID),
			zap.Strings("reasons", reasons),
		)
		rejection := coreerrors.New(
			coreerrors.CategorySafety,
			coreerrors.CodeInputGateFailed,
			reasons,
			"input gate validation failed",
			false,
		)
		s.auditReject(req, inputPack.Fingerprint, rejection, start)
		return nil, rejection
	}

	key := store.ReportKey{
		ProjectID:   req.ProjectID,
		PolicyID:    pol.PolicyID,
		TemplateID:  req.TemplateID,
		EngineID:    s.engineID,
		Fingerprint: inputPack.Fingerprint,
	}

	flightKey := fmt.Sprintf("%s|%s|%s|%s|%s", key.ProjectID, key.PolicyID, key.TemplateID, key.EngineID, key.Fingerprint)
	result, err, _ := s.group.Do(flightKey, func() (any, error) {
		return s.compileLocked(ctx, req, pol, inputPack, key, start)
	})
	if err != nil {
		s.auditReject(req, inputPack.Fingerprint, err, start)
		return nil, err
	}

	report := result.(*knox.Report)
	outcome := audit.OutcomeCompiled
	replayed := report.CreatedAt.Before(start)
	if replayed {
		outcome = audit.OutcomeReplayed
	}
	s.auditEvent(audit.Event{
		Outcome:     outcome,
		Caller:      req.Caller,
		ProjectID:   req.ProjectID,
		PolicyID:    pol.PolicyID,
		TemplateID:  req.TemplateID,
		EngineID:    report.EngineID,
		Fingerprint: report.Fingerprint,
		ReportID:    report.ID,
		Replayed:    replayed,
		LatencyMS:   time.Since(start).Milliseconds(),
	})
	return report, nil
}

// compileLocked is the single-flight section: lookup, remote call,
// output gate, persist.
func (s *Service) compileLocked(ctx context.Context, req knox.CompileRequest, pol knox.Policy, inputPack knox.InputPack, key store.ReportKey, start time.Time) (*knox.Report, error) {
	existing, found, err := s.store.LookupReport(ctx, key)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInternal, coreerrors.CodeInternal, false)
	}
	if found {
		s.log.Info("returning existing report",
			zap.String("project_id", req.ProjectID),
			zap.String("report_id", existing.ID),
			zap.String("fingerprint", key.Fingerprint),
		)
		return existing, nil
	}

	if s.backend == nil {
		return nil, coreerrors.New(
			coreerrors.CategoryInfrastructure,
			coreerrors.CodeOffline,
			[]string{"remote_url_not_configured"},
			"no compiler backend configured",
			true,
		)
	}

	structured, err := s.backend.Compile(ctx, inputPack, pol, req.TemplateID)
	if err != nil {
		return nil, err
	}

	candidate := render.Render(structured, inputPack, pol, req.TemplateID)
	final, ok, reasons := gate.Output(candidate, inputPack.SourceTexts(), pol)
	if !ok {
		s.log.Warn("output gate failed",
			zap.String("project_id", req.ProjectID),
			zap.String("policy_id", pol.PolicyID),
			zap.Strings("reasons", reasons),
		)
		return nil, coreerrors.New(
			coreerrors.CategorySafety,
			coreerrors.CodeOutputGateFailed,
			reasons,
			"output gate validation failed",
			false,
		)
	}

	report := knox.Report{
		ID:            uuid.NewString(),
		ProjectID:     req.ProjectID,
		PolicyID:      pol.PolicyID,
		PolicyVersion: pol.PolicyVersion,
		RulesetHash:   pol.RulesetHash,
		TemplateID:    req.TemplateID,
		EngineID:      s.engineID,
		Fingerprint:   inputPack.Fingerprint,
		Manifest:      inputPack.Manifest,
		GateResults: knox.GateResults{
			Input:  knox.GateOutcome{Pass: true, Reasons: []string{}},
			Output: knox.GateOutcome{Pass: true, Reasons: []string{}},
		},
		RenderedMarkdown: final,
		CreatedAt:        time.Now().UTC(),
		LatencyMS:        time.Since(start).Milliseconds(),
	}
	if err := s.store.InsertReport(ctx, report); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CategoryInternal, coreerrors.CodeInternal, false)
	}

	s.log.Info("compile succeeded",
		zap.String("project_id", req.ProjectID),
		zap.String("policy_id", pol.PolicyID),
		zap.String("report_id", report.ID),
		zap.String("engine_id", report.EngineID),
		zap.String("fingerprint", report.Fingerprint),
		zap.Int64("latency_ms", report.LatencyMS),
	)
	return &report, nil
}

// EngineID exposes the engine the pipeline compiles (or replays) under.
func (s *Service) EngineID() string { return s.engineID }
