package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

const (
	// DefaultTimeout bounds one remote compile. Local LLM inference is
	// slow, so this is minutes, not seconds.
	DefaultTimeout = 180 * time.Second

	// DefaultMaxItemChars truncates each document or note text on the
	// wire; the fingerprint is computed before truncation.
	DefaultMaxItemChars = 2000

	// maxResponseBytes caps how much of a compiler response is read.
	maxResponseBytes = 4 << 20
)

// HTTPBackend posts compile payloads to a remote compiler endpoint.
type HTTPBackend struct {
	endpoint     string
	engineID     string
	maxItemChars int
	client       *http.Client
	log          *zap.Logger
}

// HTTPOptions configures an HTTPBackend. Zero values pick defaults.
type HTTPOptions struct {
	Endpoint     string
	EngineID     string
	Timeout      time.Duration
	MaxItemChars int
	Log          *zap.Logger
}

func NewHTTPBackend(opts HTTPOptions) *HTTPBackend {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxItemChars == 0 {
		opts.MaxItemChars = DefaultMaxItemChars
	}
	if opts.EngineID == "" {
		opts.EngineID = "remote"
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &HTTPBackend{
		endpoint:     opts.Endpoint,
		engineID:     opts.EngineID,
		maxItemChars: opts.MaxItemChars,
		client:       &http.Client{Timeout: opts.Timeout},
		log:          opts.Log,
	}
}

func (b *HTTPBackend) EngineID() string { return b.engineID }

// Compile posts the payload and validates the response. Errors carry
// status codes and reason tags only, never the response body.
func (b *HTTPBackend) Compile(ctx context.Context, pack knox.InputPack, policy knox.Policy, templateID string) (knox.StructuredResult, error) {
	payload := buildPayload(pack, policy, templateID, b.maxItemChars)
	body, err := json.Marshal(payload)
	if err != nil {
		return knox.StructuredResult{}, coreerrors.Wrap(err, coreerrors.CategoryInternal, coreerrors.CodeInternal, false)
	}

	b.log.Info("remote compile",
		zap.String("policy_id", policy.PolicyID),
		zap.String("template_id", templateID),
		zap.String("fingerprint", pack.Fingerprint),
		zap.Int("doc_count", len(payload.Documents)),
		zap.Int("note_count", len(payload.Notes)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/compile", bytes.NewReader(body))
	if err != nil {
		return knox.StructuredResult{}, coreerrors.Wrap(err, coreerrors.CategoryInternal, coreerrors.CodeInternal, false)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		reason := "network_error"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			reason = "timeout"
		}
		b.log.Error("remote compile failed",
			zap.String("policy_id", policy.PolicyID),
			zap.String("template_id", templateID),
			zap.String("reason", reason),
		)
		return knox.StructuredResult{}, coreerrors.New(
			coreerrors.CategoryInfrastructure,
			coreerrors.CodeRemoteError,
			[]string{reason},
			"remote compile request failed",
			true,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.log.Error("remote compile failed",
			zap.String("policy_id", policy.PolicyID),
			zap.String("template_id", templateID),
			zap.Int("status_code", resp.StatusCode),
		)
		return knox.StructuredResult{}, coreerrors.New(
			coreerrors.CategoryInfrastructure,
			coreerrors.CodeRemoteError,
			[]string{fmt.Sprintf("http_status_%d", resp.StatusCode)},
			fmt.Sprintf("remote returned status %d", resp.StatusCode),
			true,
		)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return knox.StructuredResult{}, coreerrors.New(
			coreerrors.CategoryInfrastructure,
			coreerrors.CodeRemoteError,
			[]string{"network_error"},
			"reading remote response failed",
			true,
		)
	}
	if !json.Valid(raw) {
		return knox.StructuredResult{}, coreerrors.New(
			coreerrors.CategoryInfrastructure,
			coreerrors.CodeRemoteError,
			[]string{"invalid_json_response"},
			"remote response is not valid JSON",
			false,
		)
	}

	result, err := DecodeResult(raw)
	if err != nil {
		b.log.Error("remote compile schema validation failed",
			zap.String("policy_id", policy.PolicyID),
			zap.String("template_id", templateID),
		)
		return knox.StructuredResult{}, err
	}

	b.log.Info("remote compile succeeded",
		zap.String("policy_id", policy.PolicyID),
		zap.String("template_id", templateID),
		zap.String("fingerprint", pack.Fingerprint),
	)
	return result, nil
}

func isTimeout(err error) bool {
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
