// Package httpapi exposes the compile pipeline over HTTP. Handlers
// translate classified errors into the structured error envelope and
// never echo request or report text into logs.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/jobs"
	"github.com/DanielWarg/fortknox/core/logguard"
	"github.com/DanielWarg/fortknox/core/pipeline"
	"github.com/DanielWarg/fortknox/core/ratelimit"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
	"github.com/DanielWarg/fortknox/core/store"
)

const (
	compileBucket = "fortknox_compile"

	// callerHeader identifies the caller for rate limiting. Absent
	// means anonymous; authentication is a proxy concern.
	callerHeader = "X-Caller"

	maxRequestBytes = 1 << 20

	// codeNotFound covers lookups of ids that never existed; it is an
	// API-surface code, not part of the pipeline error taxonomy.
	codeNotFound = "NOT_FOUND"
)

type Server struct {
	pipeline      *pipeline.Service
	runner        *jobs.Runner
	store         *store.Store
	limiter       *ratelimit.Limiter
	compilePerMin int
	log           *zap.Logger
}

type Options struct {
	Pipeline      *pipeline.Service
	Runner        *jobs.Runner
	Store         *store.Store
	Limiter       *ratelimit.Limiter
	CompilePerMin int
	Log           *zap.Logger
}

func NewServer(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Server{
		pipeline:      opts.Pipeline,
		runner:        opts.Runner,
		store:         opts.Store,
		limiter:       opts.Limiter,
		compilePerMin: opts.CompilePerMin,
		log:           opts.Log,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/knox/compile", s.handleCompile)
	mux.HandleFunc("POST /api/knox/compile/jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /api/knox/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/knox/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /api/knox/projects/{id}/reports", s.handleListReports)
	return mux
}

func caller(r *http.Request) string {
	if c := r.Header.Get(callerHeader); c != "" {
		return c
	}
	return "anonymous"
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	decision := s.limiter.Allow(caller(r), compileBucket, s.compilePerMin)
	if decision.Allowed {
		return true
	}
	s.log.Warn("rate limit exceeded", zap.String("bucket", compileBucket))
	writeJSON(w, http.StatusTooManyRequests, knox.ErrorResponse{
		ErrorCode: "RATE_LIMITED",
		Reasons:   []string{"rate_limit_exceeded"},
	})
	return false
}

func decodeCompileRequest(w http.ResponseWriter, r *http.Request) (knox.CompileRequest, bool) {
	var req knox.CompileRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, knox.ErrorResponse{
			ErrorCode: coreerrors.CodeInputGateFailed,
			Reasons:   []string{"invalid_request_body"},
		})
		return knox.CompileRequest{}, false
	}
	if req.ProjectID == "" || req.PolicyID == "" || req.TemplateID == "" {
		writeJSON(w, http.StatusBadRequest, knox.ErrorResponse{
			ErrorCode: coreerrors.CodeInputGateFailed,
			Reasons:   []string{"missing_required_fields"},
		})
		return knox.CompileRequest{}, false
	}
	req.Caller = caller(r)
	return req, true
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	req, ok := decodeCompileRequest(w, r)
	if !ok {
		return
	}
	report, err := s.pipeline.Compile(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	req, ok := decodeCompileRequest(w, r)
	if !ok {
		return
	}
	job, err := s.runner.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, found, err := s.runner.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, knox.ErrorResponse{
			ErrorCode: codeNotFound,
			Reasons:   []string{"unknown_job"},
		})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, found, err := s.store.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, knox.ErrorResponse{
			ErrorCode: codeNotFound,
			Reasons:   []string{"unknown_report"},
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if reports == nil {
		reports = []knox.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

// writeError maps a classified error onto the wire envelope. Unknown
// errors degrade to INTERNAL_ERROR with no detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := coreerrors.CodeOf(err)
	envelope := knox.ErrorResponse{
		ErrorCode: code,
		Reasons:   coreerrors.ReasonsOf(err),
		Detail:    coreerrors.DetailOf(err),
	}
	var status int
	switch code {
	case coreerrors.CodeEmptyInputSet, coreerrors.CodeInputGateFailed, coreerrors.CodeOutputGateFailed:
		status = http.StatusBadRequest
	case coreerrors.CodeOffline:
		status = http.StatusServiceUnavailable
	case coreerrors.CodeRemoteError, coreerrors.CodeSchemaValidation:
		status = http.StatusInternalServerError
	default:
		status = http.StatusInternalServerError
		envelope = knox.ErrorResponse{ErrorCode: coreerrors.CodeInternal, Reasons: []string{}}
	}
	// The guard strips any content-carrying key before it reaches the log.
	s.log.Warn("request failed",
		zap.Int("status", status),
		logguard.Meta(map[string]any{
			"error_code": envelope.ErrorCode,
			"reasons":    envelope.Reasons,
			"detail":     envelope.Detail,
		}),
	)
	writeJSON(w, status, envelope)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
