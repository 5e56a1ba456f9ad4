// Package jobs runs sync and enrichment work in the background and records
// every run in the background_jobs ledger.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github-trending/internal/database"
	"github-trending/internal/enricher"
	custom_errors "github-trending/internal/errors"
	"github-trending/internal/syncer"
)

// Job types. At most one job of each type runs at a time.
const (
	TypeSync           = "sync"
	TypeContributors   = "contributors"
	TypeCommitActivity = "commit_activity"
	TypeEnrichAll      = "enrich_all"
)

// Job statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const finishTimeout = 10 * time.Second

// Syncer runs a repository sync.
type Syncer interface {
	Sync(ctx context.Context, mode syncer.Mode) (syncer.Result, error)
}

// Enricher runs enrichment passes.
type Enricher interface {
	RefreshContributors(ctx context.Context, fullName string) (enricher.PassResult, error)
	RefreshCommitActivity(ctx context.Context, fullName string) (enricher.PassResult, error)
	RefreshAll(ctx context.Context) (enricher.PassResult, error)
}

// Manager starts background jobs. Jobs outlive the request that triggered
// them and are bound to the service context instead.
type Manager struct {
	store    database.Querier
	syncer   Syncer
	enricher Enricher
	logger   *slog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
	newID   func() uuid.UUID
}

// NewManager creates a Manager whose jobs are cancelled when ctx is done.
func NewManager(ctx context.Context, store database.Querier, s Syncer, e Enricher, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		syncer:   s,
		enricher: e,
		logger:   logger,
		baseCtx:  ctx,
		newID:    uuid.New,
	}
}

// StartQuickSync triggers a sync of the quick target.
func (m *Manager) StartQuickSync(ctx context.Context) (uuid.UUID, error) {
	return m.startSync(ctx, syncer.ModeQuick)
}

// StartComprehensiveSync triggers a sync of the comprehensive target.
func (m *Manager) StartComprehensiveSync(ctx context.Context) (uuid.UUID, error) {
	return m.startSync(ctx, syncer.ModeComprehensive)
}

func (m *Manager) startSync(ctx context.Context, mode syncer.Mode) (uuid.UUID, error) {
	return m.start(ctx, TypeSync, string(mode), func(ctx context.Context) (enricher.PassResult, error) {
		res, err := m.syncer.Sync(ctx, mode)
		return enricher.PassResult{Processed: res.Repositories}, err
	})
}

// StartContributorsRefresh refreshes contributors of fullName, or of the whole
// enrichment batch when fullName is empty.
func (m *Manager) StartContributorsRefresh(ctx context.Context, fullName string) (uuid.UUID, error) {
	return m.start(ctx, TypeContributors, fullName, func(ctx context.Context) (enricher.PassResult, error) {
		return m.enricher.RefreshContributors(ctx, fullName)
	})
}

// StartCommitActivityRefresh refreshes weekly commit activity of fullName, or
// of the whole enrichment batch when fullName is empty.
func (m *Manager) StartCommitActivityRefresh(ctx context.Context, fullName string) (uuid.UUID, error) {
	return m.start(ctx, TypeCommitActivity, fullName, func(ctx context.Context) (enricher.PassResult, error) {
		return m.enricher.RefreshCommitActivity(ctx, fullName)
	})
}

// StartAllEnrichment runs every enrichment pass one after another.
func (m *Manager) StartAllEnrichment(ctx context.Context) (uuid.UUID, error) {
	return m.start(ctx, TypeEnrichAll, "", m.enricher.RefreshAll)
}

// start claims the ledger slot for jobType and runs fn in the background.
func (m *Manager) start(ctx context.Context, jobType, scope string, fn func(context.Context) (enricher.PassResult, error)) (uuid.UUID, error) {
	id := m.newID()
	_, err := m.store.CreateJob(ctx, database.CreateJobParams{ID: id, JobType: jobType, Scope: scope})
	if database.IsUniqueViolation(err) {
		return uuid.Nil, custom_errors.ErrJobAlreadyRunning
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("create %s job: %w", jobType, err)
	}

	logger := m.logger.With("job_id", id.String(), "job_type", jobType, "scope", scope)
	logger.Info("Job started")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res, err := fn(m.baseCtx)
		m.finish(logger, id, res, err)
	}()
	return id, nil
}

func (m *Manager) finish(logger *slog.Logger, id uuid.UUID, res enricher.PassResult, runErr error) {
	// The ledger row is written even when shutdown cancelled the job.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.baseCtx), finishTimeout)
	defer cancel()

	arg := database.FinishJobParams{
		ID:             id,
		Status:         StatusCompleted,
		ItemsProcessed: int32(res.Processed),
		ItemsSkipped:   int32(res.Skipped),
		ItemsFailed:    int32(res.Failed),
	}
	if runErr != nil {
		msg := runErr.Error()
		arg.Status = StatusFailed
		arg.Error = &msg
	}
	if err := m.store.FinishJob(ctx, arg); err != nil {
		logger.Error("Failed to record job result", "error", err)
	}

	if runErr != nil {
		logger.Error("Job failed", "error", runErr, "processed", res.Processed, "failed", res.Failed)
		return
	}
	logger.Info("Job completed", "processed", res.Processed, "skipped", res.Skipped, "failed", res.Failed)
}

// Recover marks jobs left running by a previous process as failed.
func (m *Manager) Recover(ctx context.Context) error {
	n, err := m.store.FailRunningJobs(ctx, "interrupted by service restart")
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}
	if n > 0 {
		m.logger.Warn("Marked stale running jobs as failed", "count", n)
	}
	return nil
}

// Schedule triggers a quick sync immediately and then every interval until
// ctx is done. A tick that overlaps a running sync is skipped.
func (m *Manager) Schedule(ctx context.Context, interval time.Duration) {
	m.logger.Info("Starting sync scheduler", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.scheduledSync(ctx) // Initial sync

	for {
		select {
		case <-ticker.C:
			m.scheduledSync(ctx)
		case <-ctx.Done():
			m.logger.Info("Sync scheduler shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (m *Manager) scheduledSync(ctx context.Context) {
	_, err := m.StartQuickSync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, custom_errors.ErrJobAlreadyRunning):
		m.logger.Info("Skipping scheduled sync, previous sync still running")
	default:
		m.logger.Error("Failed to start scheduled sync", "error", err)
	}
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
