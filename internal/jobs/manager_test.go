package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-trending/internal/database"
	"github-trending/internal/database/dbmock"
	"github-trending/internal/enricher"
	custom_errors "github-trending/internal/errors"
	"github-trending/internal/syncer"
)

// MockSyncer is a mock of the Syncer interface.
type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) Sync(ctx context.Context, mode syncer.Mode) (syncer.Result, error) {
	args := m.Called(ctx, mode)
	return args.Get(0).(syncer.Result), args.Error(1)
}

// MockEnricher is a mock of the Enricher interface.
type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) RefreshContributors(ctx context.Context, fullName string) (enricher.PassResult, error) {
	args := m.Called(ctx, fullName)
	return args.Get(0).(enricher.PassResult), args.Error(1)
}

func (m *MockEnricher) RefreshCommitActivity(ctx context.Context, fullName string) (enricher.PassResult, error) {
	args := m.Called(ctx, fullName)
	return args.Get(0).(enricher.PassResult), args.Error(1)
}

func (m *MockEnricher) RefreshAll(ctx context.Context) (enricher.PassResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(enricher.PassResult), args.Error(1)
}

var jobID = uuid.MustParse("6f1c2a4e-1b7d-4d0c-9a59-3f3f6f0c2b11")

func newTestManager(ctx context.Context) (*Manager, *dbmock.MockQuerier, *MockSyncer, *MockEnricher) {
	store := new(dbmock.MockQuerier)
	s := new(MockSyncer)
	e := new(MockEnricher)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(ctx, store, s, e, logger)
	m.newID = func() uuid.UUID { return jobID }
	return m, store, s, e
}

func TestManager_StartQuickSync(t *testing.T) {
	ctx := context.Background()
	m, store, s, _ := newTestManager(ctx)

	store.On("CreateJob", ctx, database.CreateJobParams{ID: jobID, JobType: TypeSync, Scope: "quick"}).
		Return(database.BackgroundJob{ID: jobID, Status: StatusRunning}, nil).Once()
	s.On("Sync", ctx, syncer.ModeQuick).Return(syncer.Result{Pages: 15, Repositories: 300}, nil).Once()
	store.On("FinishJob", mock.Anything, database.FinishJobParams{
		ID:             jobID,
		Status:         StatusCompleted,
		ItemsProcessed: 300,
	}).Return(nil).Once()

	id, err := m.StartQuickSync(ctx)
	m.Wait()

	require.NoError(t, err)
	assert.Equal(t, jobID, id)
	store.AssertExpectations(t)
	s.AssertExpectations(t)
}

func TestManager_FailedJobRecordsTheError(t *testing.T) {
	ctx := context.Background()
	m, store, s, _ := newTestManager(ctx)
	syncErr := &custom_errors.UpstreamError{Kind: custom_errors.ErrAuth, Op: "search repositories"}

	store.On("CreateJob", ctx, mock.Anything).Return(database.BackgroundJob{ID: jobID}, nil).Once()
	s.On("Sync", ctx, syncer.ModeComprehensive).Return(syncer.Result{Pages: 2, Repositories: 40}, syncErr).Once()

	var finished database.FinishJobParams
	store.On("FinishJob", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		finished = args.Get(1).(database.FinishJobParams)
	}).Return(nil).Once()

	_, err := m.StartComprehensiveSync(ctx)
	m.Wait()

	require.NoError(t, err, "the trigger itself succeeds")
	assert.Equal(t, StatusFailed, finished.Status)
	assert.Equal(t, int32(40), finished.ItemsProcessed)
	require.NotNil(t, finished.Error)
	assert.Contains(t, *finished.Error, "upstream credential rejected")
}

func TestManager_RejectsOverlappingJobs(t *testing.T) {
	ctx := context.Background()
	m, store, s, _ := newTestManager(ctx)

	store.On("CreateJob", ctx, mock.Anything).Return(database.BackgroundJob{}, &pgconn.PgError{Code: "23505"}).Once()

	id, err := m.StartQuickSync(ctx)
	m.Wait()

	assert.ErrorIs(t, err, custom_errors.ErrJobAlreadyRunning)
	assert.Equal(t, uuid.Nil, id)
	s.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
}

func TestManager_LedgerErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newTestManager(ctx)

	store.On("CreateJob", ctx, mock.Anything).Return(database.BackgroundJob{}, errors.New("connection refused")).Once()

	_, err := m.StartAllEnrichment(ctx)

	require.Error(t, err)
	assert.NotErrorIs(t, err, custom_errors.ErrJobAlreadyRunning)
}

func TestManager_EnrichmentJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("contributors for one repository", func(t *testing.T) {
		m, store, _, e := newTestManager(ctx)
		store.On("CreateJob", ctx, database.CreateJobParams{ID: jobID, JobType: TypeContributors, Scope: "octo/hello"}).
			Return(database.BackgroundJob{}, nil).Once()
		e.On("RefreshContributors", ctx, "octo/hello").Return(enricher.PassResult{Processed: 1}, nil).Once()
		store.On("FinishJob", mock.Anything, mock.MatchedBy(func(arg database.FinishJobParams) bool {
			return arg.Status == StatusCompleted && arg.ItemsProcessed == 1 && arg.Error == nil
		})).Return(nil).Once()

		_, err := m.StartContributorsRefresh(ctx, "octo/hello")
		m.Wait()

		require.NoError(t, err)
		store.AssertExpectations(t)
		e.AssertExpectations(t)
	})

	t.Run("commit activity batch keeps per-item counters", func(t *testing.T) {
		m, store, _, e := newTestManager(ctx)
		store.On("CreateJob", ctx, database.CreateJobParams{ID: jobID, JobType: TypeCommitActivity}).
			Return(database.BackgroundJob{}, nil).Once()
		e.On("RefreshCommitActivity", ctx, "").Return(enricher.PassResult{Processed: 250, Skipped: 40, Failed: 10}, nil).Once()
		store.On("FinishJob", mock.Anything, database.FinishJobParams{
			ID:             jobID,
			Status:         StatusCompleted,
			ItemsProcessed: 250,
			ItemsSkipped:   40,
			ItemsFailed:    10,
		}).Return(nil).Once()

		_, err := m.StartCommitActivityRefresh(ctx, "")
		m.Wait()

		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("all enrichment", func(t *testing.T) {
		m, store, _, e := newTestManager(ctx)
		store.On("CreateJob", ctx, database.CreateJobParams{ID: jobID, JobType: TypeEnrichAll}).
			Return(database.BackgroundJob{}, nil).Once()
		e.On("RefreshAll", ctx).Return(enricher.PassResult{Processed: 2}, nil).Once()
		store.On("FinishJob", mock.Anything, mock.Anything).Return(nil).Once()

		_, err := m.StartAllEnrichment(ctx)
		m.Wait()

		require.NoError(t, err)
		e.AssertExpectations(t)
	})
}

func TestManager_FinishIsRecordedAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, store, s, _ := newTestManager(ctx)

	started := make(chan struct{})
	store.On("CreateJob", mock.Anything, mock.Anything).Return(database.BackgroundJob{}, nil).Once()
	s.On("Sync", ctx, syncer.ModeQuick).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(syncer.Result{}, context.Canceled).Once()
	store.On("FinishJob", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), mock.MatchedBy(func(arg database.FinishJobParams) bool {
		return arg.Status == StatusFailed
	})).Return(nil).Once()

	_, err := m.StartQuickSync(context.Background())
	require.NoError(t, err)
	<-started
	cancel()
	m.Wait()

	store.AssertExpectations(t)
}

func TestManager_Recover(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newTestManager(ctx)
	store.On("FailRunningJobs", ctx, mock.AnythingOfType("string")).Return(int64(2), nil).Once()

	require.NoError(t, m.Recover(ctx))
	store.AssertExpectations(t)
}

func TestManager_Schedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, store, s, _ := newTestManager(ctx)

	// The initial tick finds a sync already running, the next one starts a new sync.
	store.On("CreateJob", mock.Anything, mock.Anything).Return(database.BackgroundJob{}, &pgconn.PgError{Code: "23505"}).Once()
	store.On("CreateJob", mock.Anything, mock.Anything).Return(database.BackgroundJob{}, nil).Once()
	// Ticks racing the cancellation below see the slot as taken.
	store.On("CreateJob", mock.Anything, mock.Anything).Return(database.BackgroundJob{}, &pgconn.PgError{Code: "23505"})
	s.On("Sync", ctx, syncer.ModeQuick).Return(syncer.Result{Repositories: 10}, nil).Once()
	store.On("FinishJob", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		cancel()
	}).Return(nil).Once()

	done := make(chan struct{})
	go func() {
		m.Schedule(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	m.Wait()
	s.AssertExpectations(t)
	store.AssertCalled(t, "FinishJob", mock.Anything, mock.Anything)
}
