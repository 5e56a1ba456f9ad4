package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-trending/internal/database"
	"github-trending/internal/database/dbmock"
	custom_errors "github-trending/internal/errors"
	"github-trending/internal/github"
	"github-trending/internal/model"
	"github-trending/internal/retry"
)

// MockSearcher is a mock of the RepositorySearcher interface.
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) SearchRepositories(ctx context.Context, query string, pageSize int, cursor string) (*github.SearchPage, error) {
	args := m.Called(ctx, query, pageSize, cursor)
	page, _ := args.Get(0).(*github.SearchPage)
	return page, args.Error(1)
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func repos(from, n int) []model.Repository {
	out := make([]model.Repository, n)
	for i := range out {
		id := from + i
		out[i] = model.Repository{
			GithubID:   int64(id),
			FullName:   fmt.Sprintf("owner/repo-%d", id),
			Owner:      "owner",
			Name:       fmt.Sprintf("repo-%d", id),
			StarsCount: 10000 - id,
		}
	}
	return out
}

type harness struct {
	syncer   *Syncer
	store    *dbmock.MockStore
	searcher *MockSearcher
	sleeps   []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: new(dbmock.MockStore), searcher: new(MockSearcher)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	record := func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	h.syncer = NewSyncer(h.store, h.searcher, logger, Options{
		Query:               "stars:>1000",
		PageSize:            20,
		QuickTarget:         300,
		ComprehensiveTarget: 1000,
		PacingDelay:         time.Second,
		Retry: retry.Policy{
			RateLimitBase: 60 * time.Second,
			TransientBase: 10 * time.Second,
			MaxAttempts:   3,
			Logger:        logger,
			Sleep:         record,
		},
	})
	h.syncer.now = func() time.Time { return fixedNow }
	h.syncer.sleep = record
	return h
}

// expectPersistAny accepts every write for any repository.
func (h *harness) expectPersistAny() {
	h.store.On("ReleaseRepositoryName", mock.Anything, mock.Anything).Return(int64(0), nil)
	h.store.On("UpsertRepository", mock.Anything, mock.Anything).Return(database.UpsertRepositoryRow{ID: 1}, nil)
	h.store.On("DeleteRepositoryLanguages", mock.Anything, mock.Anything).Return(nil)
	h.store.On("CreateRepositoryLanguages", mock.Anything, mock.Anything).Return(int64(0), nil)
	h.store.On("UpsertRepositoryStats", mock.Anything, mock.Anything).Return(nil)
}

func TestSyncer_Sync(t *testing.T) {
	ctx := context.Background()

	t.Run("stops when a page comes back short", func(t *testing.T) {
		h := newHarness(t)
		h.expectPersistAny()
		h.searcher.On("SearchRepositories", ctx, "stars:>1000", 20, "").
			Return(&github.SearchPage{Repositories: repos(0, 20), HasNextPage: true, EndCursor: "c1"}, nil).Once()
		h.searcher.On("SearchRepositories", ctx, "stars:>1000", 20, "c1").
			Return(&github.SearchPage{Repositories: repos(20, 5), HasNextPage: true, EndCursor: "c2"}, nil).Once()

		res, err := h.syncer.Sync(ctx, ModeQuick)

		require.NoError(t, err)
		assert.Equal(t, Result{Pages: 2, Repositories: 25}, res)
		assert.Equal(t, 2, h.store.Transactions, "one transaction per batch")
		h.store.AssertNumberOfCalls(t, "UpsertRepository", 25)
		h.store.AssertNumberOfCalls(t, "UpsertRepositoryStats", 25)
		assert.Equal(t, []time.Duration{time.Second}, h.sleeps, "paced once between the two pages")
		h.searcher.AssertExpectations(t)
	})

	t.Run("stops when upstream reports no next page", func(t *testing.T) {
		h := newHarness(t)
		h.expectPersistAny()
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "").
			Return(&github.SearchPage{Repositories: repos(0, 20), HasNextPage: false}, nil).Once()

		res, err := h.syncer.Sync(ctx, ModeComprehensive)

		require.NoError(t, err)
		assert.Equal(t, Result{Pages: 1, Repositories: 20}, res)
		assert.Empty(t, h.sleeps)
	})

	t.Run("stops at the mode target", func(t *testing.T) {
		h := newHarness(t)
		h.syncer.opts.QuickTarget = 50
		h.expectPersistAny()
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "").
			Return(&github.SearchPage{Repositories: repos(0, 20), HasNextPage: true, EndCursor: "c1"}, nil).Once()
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "c1").
			Return(&github.SearchPage{Repositories: repos(20, 20), HasNextPage: true, EndCursor: "c2"}, nil).Once()
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 10, "c2").
			Return(&github.SearchPage{Repositories: repos(40, 10), HasNextPage: true, EndCursor: "c3"}, nil).Once()

		res, err := h.syncer.Sync(ctx, ModeQuick)

		require.NoError(t, err)
		assert.Equal(t, Result{Pages: 3, Repositories: 50}, res)
		assert.Len(t, h.sleeps, 2)
		h.searcher.AssertExpectations(t)
	})

	t.Run("retries the same cursor after a rate limit", func(t *testing.T) {
		h := newHarness(t)
		h.expectPersistAny()
		rateLimited := &custom_errors.UpstreamError{Kind: custom_errors.ErrRateLimited, Op: "search"}
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "").
			Return(&github.SearchPage{Repositories: repos(0, 20), HasNextPage: true, EndCursor: "c1"}, nil).Once()
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "c1").Return(nil, rateLimited).Once()
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "c1").
			Return(&github.SearchPage{Repositories: repos(20, 3)}, nil).Once()

		res, err := h.syncer.Sync(ctx, ModeQuick)

		require.NoError(t, err)
		assert.Equal(t, 23, res.Repositories)
		assert.Equal(t, []time.Duration{time.Second, 60 * time.Second}, h.sleeps)
		h.searcher.AssertExpectations(t)
	})

	t.Run("gives up after repeated transient errors", func(t *testing.T) {
		h := newHarness(t)
		transient := &custom_errors.UpstreamError{Kind: custom_errors.ErrTransient, Op: "search"}
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "").Return(nil, transient)

		_, err := h.syncer.Sync(ctx, ModeQuick)

		var gaveUp *custom_errors.GaveUpError
		require.ErrorAs(t, err, &gaveUp)
		assert.Equal(t, 3, gaveUp.Attempts)
		assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second}, h.sleeps)
		h.searcher.AssertNumberOfCalls(t, "SearchRepositories", 3)
		h.store.AssertNotCalled(t, "UpsertRepository", mock.Anything, mock.Anything)
	})

	t.Run("aborts on an auth error without retrying", func(t *testing.T) {
		h := newHarness(t)
		authErr := &custom_errors.UpstreamError{Kind: custom_errors.ErrAuth, Op: "search"}
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "").Return(nil, authErr).Once()

		res, err := h.syncer.Sync(ctx, ModeQuick)

		assert.ErrorIs(t, err, custom_errors.ErrAuth)
		assert.Zero(t, res.Pages)
		assert.Empty(t, h.sleeps)
		assert.Zero(t, h.store.Transactions)
	})

	t.Run("keeps earlier pages when a later page fails to persist", func(t *testing.T) {
		h := newHarness(t)
		dbErr := errors.New("connection reset")
		h.store.On("ReleaseRepositoryName", mock.Anything, mock.Anything).Return(int64(0), nil)
		h.store.On("UpsertRepository", mock.Anything, mock.MatchedBy(func(arg database.UpsertRepositoryParams) bool {
			return arg.GithubID < 20
		})).Return(database.UpsertRepositoryRow{ID: 1}, nil)
		h.store.On("UpsertRepository", mock.Anything, mock.Anything).Return(database.UpsertRepositoryRow{}, dbErr)
		h.store.On("DeleteRepositoryLanguages", mock.Anything, mock.Anything).Return(nil)
		h.store.On("UpsertRepositoryStats", mock.Anything, mock.Anything).Return(nil)
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "").
			Return(&github.SearchPage{Repositories: repos(0, 20), HasNextPage: true, EndCursor: "c1"}, nil).Once()
		h.searcher.On("SearchRepositories", ctx, mock.Anything, 20, "c1").
			Return(&github.SearchPage{Repositories: repos(20, 20), HasNextPage: true, EndCursor: "c2"}, nil).Once()

		res, err := h.syncer.Sync(ctx, ModeQuick)

		require.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "persist page 2")
		assert.Equal(t, Result{Pages: 1, Repositories: 20}, res)
	})

	t.Run("rejects unknown modes", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.syncer.Sync(ctx, Mode("weekly"))
		assert.Error(t, err)
	})
}

func TestSyncer_SyncRepo(t *testing.T) {
	ctx := context.Background()
	pushed := fixedNow.Add(-3 * 24 * time.Hour)
	desc := "A declarative UI library"
	lang := "Go"
	repo := model.Repository{
		GithubID:           42,
		FullName:           "octo/hello",
		Owner:              "octo",
		Name:               "hello",
		Description:        &desc,
		StarsCount:         1000,
		ForksCount:         200,
		OpenIssuesCount:    10,
		PrimaryLanguage:    &lang,
		PushedAt:           &pushed,
		RepoCreatedAt:      fixedNow.AddDate(-3, 0, 0),
		RepoUpdatedAt:      fixedNow,
		License:            &model.License{Key: "mit", Name: "MIT License", SPDXID: "MIT"},
		Languages:          []model.Language{{Name: "Go", Bytes: 750}, {Name: "Shell", Bytes: 250}},
		LanguagesTotalSize: 1000,
		CommitCount:        321,
	}

	t.Run("writes repository, languages and stats", func(t *testing.T) {
		h := newHarness(t)
		h.store.On("ReleaseRepositoryName", ctx, database.ReleaseRepositoryNameParams{FullName: "octo/hello", GithubID: 42}).Return(int64(0), nil)
		h.store.On("UpsertRepository", ctx, mock.MatchedBy(func(arg database.UpsertRepositoryParams) bool {
			return arg.GithubID == 42 && arg.FullName == "octo/hello" &&
				arg.Description.String == desc && arg.LicenseSpdxID.String == "MIT" &&
				arg.LastFetched.Time.Equal(fixedNow)
		})).Return(database.UpsertRepositoryRow{ID: 7, PrevStars: pgtype.Int4{Int32: 900, Valid: true}, PrevForks: pgtype.Int4{Int32: 200, Valid: true}}, nil).Once()
		h.store.On("DeleteRepositoryLanguages", ctx, int64(7)).Return(nil).Once()
		h.store.On("CreateRepositoryLanguages", ctx, []database.CreateRepositoryLanguagesParams{
			{RepositoryID: 7, Language: "Go", Bytes: 750, Percentage: 75},
			{RepositoryID: 7, Language: "Shell", Bytes: 250, Percentage: 25},
		}).Return(int64(2), nil).Once()

		var stats database.UpsertRepositoryStatsParams
		h.store.On("UpsertRepositoryStats", ctx, mock.Anything).Run(func(args mock.Arguments) {
			stats = args.Get(1).(database.UpsertRepositoryStatsParams)
		}).Return(nil).Once()

		err := h.syncer.syncRepo(ctx, h.store, repo, fixedNow)

		require.NoError(t, err)
		h.store.AssertExpectations(t)
		assert.Equal(t, int64(7), stats.RepositoryID)
		assert.Equal(t, 620.2, stats.ActivityScore)
		assert.Equal(t, int32(80), stats.HealthScore)
		assert.Equal(t, int32(321), stats.TotalCommits)
		assert.Equal(t, pgtype.Int4{Int32: 100, Valid: true}, stats.StarsGrowth)
		assert.False(t, stats.ForksGrowth.Valid, "unchanged counter keeps the stored growth")
		assert.Equal(t, pgtype.Int4{Int32: 3, Valid: true}, stats.DaysSinceLastCommit)
		assert.False(t, stats.LatestReleaseTag.Valid)
	})

	t.Run("re-syncing an identical snapshot sends identical writes", func(t *testing.T) {
		h := newHarness(t)
		h.store.On("ReleaseRepositoryName", ctx, database.ReleaseRepositoryNameParams{FullName: "octo/hello", GithubID: 42}).Return(int64(0), nil)
		var upserts []database.UpsertRepositoryParams
		var statsWrites []database.UpsertRepositoryStatsParams
		h.store.On("UpsertRepository", ctx, mock.Anything).Run(func(args mock.Arguments) {
			upserts = append(upserts, args.Get(1).(database.UpsertRepositoryParams))
		}).Return(database.UpsertRepositoryRow{ID: 7, PrevStars: pgtype.Int4{Int32: 1000, Valid: true}, PrevForks: pgtype.Int4{Int32: 200, Valid: true}}, nil)
		h.store.On("DeleteRepositoryLanguages", ctx, int64(7)).Return(nil)
		h.store.On("CreateRepositoryLanguages", ctx, mock.Anything).Return(int64(2), nil)
		h.store.On("UpsertRepositoryStats", ctx, mock.Anything).Run(func(args mock.Arguments) {
			statsWrites = append(statsWrites, args.Get(1).(database.UpsertRepositoryStatsParams))
		}).Return(nil)

		require.NoError(t, h.syncer.syncRepo(ctx, h.store, repo, fixedNow))
		require.NoError(t, h.syncer.syncRepo(ctx, h.store, repo, fixedNow))

		require.Len(t, upserts, 2)
		assert.Equal(t, upserts[0], upserts[1])
		assert.Equal(t, statsWrites[0], statsWrites[1])
		assert.False(t, statsWrites[0].StarsGrowth.Valid)
	})

	t.Run("skips the language insert when there are none", func(t *testing.T) {
		h := newHarness(t)
		h.store.On("ReleaseRepositoryName", ctx, database.ReleaseRepositoryNameParams{FullName: "octo/hello", GithubID: 42}).Return(int64(0), nil)
		bare := repo
		bare.Languages = nil
		h.store.On("UpsertRepository", ctx, mock.Anything).Return(database.UpsertRepositoryRow{ID: 8}, nil).Once()
		h.store.On("DeleteRepositoryLanguages", ctx, int64(8)).Return(nil).Once()
		h.store.On("UpsertRepositoryStats", ctx, mock.Anything).Return(nil).Once()

		require.NoError(t, h.syncer.syncRepo(ctx, h.store, bare, fixedNow))
		h.store.AssertNotCalled(t, "CreateRepositoryLanguages", mock.Anything, mock.Anything)
	})

	t.Run("archived repositories get a zero health score", func(t *testing.T) {
		h := newHarness(t)
		h.store.On("ReleaseRepositoryName", ctx, database.ReleaseRepositoryNameParams{FullName: "octo/hello", GithubID: 42}).Return(int64(0), nil)
		archived := repo
		archived.IsArchived = true
		archived.HasDiscussions = true
		h.store.On("UpsertRepository", ctx, mock.Anything).Return(database.UpsertRepositoryRow{ID: 9}, nil).Once()
		h.store.On("DeleteRepositoryLanguages", ctx, int64(9)).Return(nil).Once()
		h.store.On("CreateRepositoryLanguages", ctx, mock.Anything).Return(int64(2), nil).Once()
		h.store.On("UpsertRepositoryStats", ctx, mock.MatchedBy(func(arg database.UpsertRepositoryStatsParams) bool {
			return arg.HealthScore == 0
		})).Return(nil).Once()

		require.NoError(t, h.syncer.syncRepo(ctx, h.store, archived, fixedNow))
		h.store.AssertExpectations(t)
	})

	t.Run("takes the name over from a stale row", func(t *testing.T) {
		h := newHarness(t)
		renamed := repo
		renamed.Languages = nil
		h.store.On("ReleaseRepositoryName", ctx, database.ReleaseRepositoryNameParams{FullName: "octo/hello", GithubID: 42}).Return(int64(1), nil).Once()
		h.store.On("UpsertRepository", ctx, mock.MatchedBy(func(arg database.UpsertRepositoryParams) bool {
			return arg.FullName == "octo/hello" && arg.GithubID == 42
		})).Return(database.UpsertRepositoryRow{ID: 10}, nil).Once()
		h.store.On("DeleteRepositoryLanguages", ctx, int64(10)).Return(nil).Once()
		h.store.On("UpsertRepositoryStats", ctx, mock.Anything).Return(nil).Once()

		require.NoError(t, h.syncer.syncRepo(ctx, h.store, renamed, fixedNow))
		h.store.AssertExpectations(t)
	})

	t.Run("a failed name release stops before the upsert", func(t *testing.T) {
		h := newHarness(t)
		dbErr := errors.New("deadlock detected")
		h.store.On("ReleaseRepositoryName", ctx, mock.Anything).Return(int64(0), dbErr).Once()

		err := h.syncer.syncRepo(ctx, h.store, repo, fixedNow)

		require.ErrorIs(t, err, dbErr)
		h.store.AssertNotCalled(t, "UpsertRepository", mock.Anything, mock.Anything)
	})
}

func TestGrowth(t *testing.T) {
	assert.Nil(t, growth(pgtype.Int4{}, 10), "new repositories have no growth yet")
	assert.Nil(t, growth(pgtype.Int4{Int32: 10, Valid: true}, 10))
	assert.Equal(t, -5, *growth(pgtype.Int4{Int32: 15, Valid: true}, 10))
}
