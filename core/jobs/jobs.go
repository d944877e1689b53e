// Package jobs wraps the synchronous compile pipeline in fire-and-forget
// background jobs. A job record carries ids, status and timing only;
// report text lives in the reports table and nowhere else.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/pipeline"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
	"github.com/DanielWarg/fortknox/core/store"
)

const (
	KindCompile = "fortknox_compile"

	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Runner executes compile jobs in the background. Cancellation mid-job
// is not supported; a failed or timed-out compile marks the job failed.
type Runner struct {
	pipeline *pipeline.Service
	store    *store.Store
	log      *zap.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

type RunnerOptions struct {
	Pipeline *pipeline.Service
	Store    *store.Store
	Log      *zap.Logger
	// Timeout bounds one background compile; zero means no bound beyond
	// the backend's own.
	Timeout time.Duration
}

func NewRunner(opts RunnerOptions) *Runner {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Runner{
		pipeline: opts.Pipeline,
		store:    opts.Store,
		log:      opts.Log,
		timeout:  opts.Timeout,
	}
}

// Submit persists a queued job record and starts the compile in the
// background. The returned record is the caller's polling handle.
func (r *Runner) Submit(ctx context.Context, req knox.CompileRequest) (knox.JobRecord, error) {
	now := time.Now().UTC()
	job := knox.JobRecord{
		ID:        uuid.NewString(),
		Kind:      KindCompile,
		Status:    StatusQueued,
		ProjectID: req.ProjectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return knox.JobRecord{}, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(job.ID, req)
	}()
	return job, nil
}

func (r *Runner) run(jobID string, req knox.CompileRequest) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.store.UpdateJobStatus(ctx, jobID, StatusRunning, "", ""); err != nil {
		r.log.Error("job status update failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	report, err := r.pipeline.Compile(ctx, req)
	if err != nil {
		code := coreerrors.CodeOf(err)
		if code == "" {
			code = coreerrors.CodeInternal
		}
		r.log.Warn("background compile failed",
			zap.String("job_id", jobID),
			zap.String("project_id", req.ProjectID),
			zap.String("error_code", code),
		)
		if err := r.store.UpdateJobStatus(context.Background(), jobID, StatusFailed, "", code); err != nil {
			r.log.Error("job status update failed", zap.String("job_id", jobID), zap.Error(err))
		}
		return
	}

	if err := r.store.UpdateJobStatus(context.Background(), jobID, StatusSucceeded, report.ID, ""); err != nil {
		r.log.Error("job status update failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	r.log.Info("background compile succeeded",
		zap.String("job_id", jobID),
		zap.String("project_id", req.ProjectID),
		zap.String("report_id", report.ID),
	)
}

// Get fetches a job record for polling.
func (r *Runner) Get(ctx context.Context, jobID string) (*knox.JobRecord, bool, error) {
	return r.store.GetJob(ctx, jobID)
}

// Wait blocks until all submitted jobs have finished. Shutdown helper.
func (r *Runner) Wait() {
	r.wg.Wait()
}
