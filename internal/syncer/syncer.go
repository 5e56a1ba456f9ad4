// internal/syncer/syncer.go
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github-trending/internal/database"
	"github-trending/internal/github"
	"github-trending/internal/model"
	"github-trending/internal/retry"
	"github-trending/internal/scoring"
)

// Mode selects how many repositories a sync walks through.
type Mode string

const (
	ModeQuick         Mode = "quick"
	ModeComprehensive Mode = "comprehensive"
)

// RepositorySearcher fetches pages of repositories ordered by stars.
type RepositorySearcher interface {
	SearchRepositories(ctx context.Context, query string, pageSize int, cursor string) (*github.SearchPage, error)
}

// Options tunes a Syncer.
type Options struct {
	Query               string
	PageSize            int
	QuickTarget         int
	ComprehensiveTarget int
	PacingDelay         time.Duration
	Retry               retry.Policy
}

// Result summarises a finished sync.
type Result struct {
	Pages        int
	Repositories int
}

// Syncer orchestrates the fetching and storing of repository batches.
type Syncer struct {
	store    database.Transactor
	ghClient RepositorySearcher
	logger   *slog.Logger
	opts     Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(store database.Transactor, ghClient RepositorySearcher, logger *slog.Logger, opts Options) *Syncer {
	if opts.PageSize <= 0 || opts.PageSize > github.MaxSearchPageSize {
		opts.PageSize = github.MaxSearchPageSize
	}
	return &Syncer{
		store:    store,
		ghClient: ghClient,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		sleep:    retry.Sleep,
	}
}

// Sync pages through the search results until the mode's target is reached
// or upstream runs out of results. Each page is committed in its own
// transaction before the cursor advances, so an aborted run keeps every page
// it finished.
func (s *Syncer) Sync(ctx context.Context, mode Mode) (Result, error) {
	target, err := s.target(mode)
	if err != nil {
		return Result{}, err
	}
	logger := s.logger.With("mode", string(mode), "target", target)
	logger.Info("Starting sync")

	var (
		res    Result
		cursor string
	)
	for res.Repositories < target {
		pageSize := min(s.opts.PageSize, target-res.Repositories)

		var page *github.SearchPage
		err := s.opts.Retry.Do(ctx, "search repositories", func(ctx context.Context) error {
			var err error
			page, err = s.ghClient.SearchRepositories(ctx, s.opts.Query, pageSize, cursor)
			return err
		})
		if err != nil {
			logger.Error("Sync aborted", "page", res.Pages+1, "error", err)
			return res, fmt.Errorf("fetch page %d: %w", res.Pages+1, err)
		}

		if len(page.Repositories) > 0 {
			if err := s.persistBatch(ctx, page.Repositories); err != nil {
				logger.Error("Sync aborted", "page", res.Pages+1, "error", err)
				return res, fmt.Errorf("persist page %d: %w", res.Pages+1, err)
			}
		}
		res.Pages++
		res.Repositories += len(page.Repositories)
		logger.Info("Batch persisted", "page", res.Pages, "count", len(page.Repositories), "total", res.Repositories)

		if len(page.Repositories) < pageSize || !page.HasNextPage || page.EndCursor == "" {
			break
		}
		cursor = page.EndCursor

		if res.Repositories < target {
			if err := s.sleep(ctx, s.opts.PacingDelay); err != nil {
				return res, err
			}
		}
	}

	logger.Info("Sync finished", "pages", res.Pages, "repositories", res.Repositories)
	return res, nil
}

func (s *Syncer) target(mode Mode) (int, error) {
	switch mode {
	case ModeQuick:
		return s.opts.QuickTarget, nil
	case ModeComprehensive:
		return s.opts.ComprehensiveTarget, nil
	default:
		return 0, fmt.Errorf("unknown sync mode %q", mode)
	}
}

// persistBatch wraps one page of repositories, their languages and stats in a
// single transaction.
func (s *Syncer) persistBatch(ctx context.Context, repos []model.Repository) error {
	now := s.now().UTC()
	return s.store.ExecTx(ctx, func(q database.Querier) error {
		for _, repo := range repos {
			if err := s.syncRepo(ctx, q, repo, now); err != nil {
				return fmt.Errorf("%s: %w", repo.FullName, err)
			}
		}
		return nil
	})
}

// syncRepo stores one snapshot: repository row, language breakdown and stats.
func (s *Syncer) syncRepo(ctx context.Context, q database.Querier, repo model.Repository, now time.Time) error {
	// A rename can hand this repository a name another stored row still holds.
	released, err := q.ReleaseRepositoryName(ctx, database.ReleaseRepositoryNameParams{FullName: repo.FullName, GithubID: repo.GithubID})
	if err != nil {
		return fmt.Errorf("release repository name: %w", err)
	}
	if released > 0 {
		s.logger.Warn("Repository name taken over by another repository", "repo", repo.FullName, "github_id", repo.GithubID)
	}

	row, err := s.upsertRepository(ctx, q, repo, now)
	if err != nil {
		return fmt.Errorf("upsert repository: %w", err)
	}

	if err := q.DeleteRepositoryLanguages(ctx, row.ID); err != nil {
		return fmt.Errorf("delete languages: %w", err)
	}
	if len(repo.Languages) > 0 {
		if _, err := q.CreateRepositoryLanguages(ctx, prepareLanguageBulkInsert(row.ID, repo)); err != nil {
			return fmt.Errorf("insert languages: %w", err)
		}
	}

	stats := scoring.Compute(repo, now)
	stats.StarsGrowth = growth(row.PrevStars, repo.StarsCount)
	stats.ForksGrowth = growth(row.PrevForks, repo.ForksCount)
	if err := q.UpsertRepositoryStats(ctx, toStatsParams(row.ID, stats, now)); err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}

	s.logger.Debug("Repository synced", "repo", repo.FullName, "repo_id", row.ID,
		"activity_score", stats.ActivityScore, "health_score", stats.HealthScore)
	return nil
}

// upsertRepository creates or updates a repository keyed by its upstream id.
func (s *Syncer) upsertRepository(ctx context.Context, q database.Querier, repo model.Repository, now time.Time) (database.UpsertRepositoryRow, error) {
	arg := database.UpsertRepositoryParams{
		GithubID:         repo.GithubID,
		FullName:         repo.FullName,
		Owner:            repo.Owner,
		Name:             repo.Name,
		OwnerAvatarUrl:   repo.OwnerAvatarURL,
		Description:      toText(repo.Description),
		Url:              repo.URL,
		Homepage:         toText(repo.Homepage),
		StargazersCount:  nonNegative(repo.StarsCount),
		ForksCount:       nonNegative(repo.ForksCount),
		WatchersCount:    nonNegative(repo.WatchersCount),
		OpenIssuesCount:  nonNegative(repo.OpenIssuesCount),
		SizeKb:           nonNegative(repo.SizeKB),
		PrimaryLanguage:  toText(repo.PrimaryLanguage),
		Topics:           repo.Topics,
		RepoCreatedAt:    toTimestamptz(&repo.RepoCreatedAt),
		RepoUpdatedAt:    toTimestamptz(&repo.RepoUpdatedAt),
		PushedAt:         toTimestamptz(repo.PushedAt),
		IsArchived:       repo.IsArchived,
		IsDisabled:       repo.IsDisabled,
		IsFork:           repo.IsFork,
		IsTemplate:       repo.IsTemplate,
		HasWiki:          repo.HasWiki,
		HasPages:         repo.HasPages,
		HasDiscussions:   repo.HasDiscussions,
		HasIssues:        repo.HasIssues,
		HasProjects:      repo.HasProjects,
		DefaultBranch:    repo.DefaultBranch,
		SubscribersCount: nonNegative(repo.SubscribersCount),
		NetworkCount:     nonNegative(repo.NetworkCount),
		LastFetched:      toTimestamptz(&now),
	}
	if repo.License != nil {
		arg.LicenseKey = toText(&repo.License.Key)
		arg.LicenseName = toText(&repo.License.Name)
		arg.LicenseSpdxID = toText(&repo.License.SPDXID)
	}
	return q.UpsertRepository(ctx, arg)
}

// growth is nil when the counter did not move, which keeps the stored delta.
func growth(prev pgtype.Int4, current int) *int {
	if !prev.Valid || int(prev.Int32) == current {
		return nil
	}
	delta := current - int(prev.Int32)
	return &delta
}

func prepareLanguageBulkInsert(repoID int64, repo model.Repository) []database.CreateRepositoryLanguagesParams {
	shares := scoring.LanguageBreakdown(repo.Languages, repo.LanguagesTotalSize)
	params := make([]database.CreateRepositoryLanguagesParams, len(shares))
	for i, l := range shares {
		params[i] = database.CreateRepositoryLanguagesParams{
			RepositoryID: repoID,
			Language:     l.Name,
			Color:        l.Color,
			Bytes:        l.Bytes,
			Percentage:   l.Percentage,
		}
	}
	return params
}

func toStatsParams(repoID int64, stats model.Stats, now time.Time) database.UpsertRepositoryStatsParams {
	return database.UpsertRepositoryStatsParams{
		RepositoryID:         repoID,
		TotalCommits:         int32(stats.TotalCommits),
		StarsGrowth:          toInt4(stats.StarsGrowth),
		ForksGrowth:          toInt4(stats.ForksGrowth),
		ActivityScore:        stats.ActivityScore,
		HealthScore:          int32(stats.HealthScore),
		AvgIssueCloseHours:   toFloat8(stats.AvgIssueCloseHours),
		AvgPrMergeHours:      toFloat8(stats.AvgPRMergeHours),
		DaysSinceLastCommit:  toInt4(stats.DaysSinceLastCommit),
		DaysSinceLastRelease: toInt4(stats.DaysSinceLastRelease),
		LatestReleaseTag:     toText(stats.LatestReleaseTag),
		LatestReleaseDate:    toTimestamptz(stats.LatestReleaseDate),
		TotalReleases:        int32(stats.TotalReleases),
		CalculatedAt:         toTimestamptz(&now),
	}
}

func toText(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func toInt4(v *int) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*v), Valid: true}
}

func toFloat8(v *float64) pgtype.Float8 {
	if v == nil {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: *v, Valid: true}
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil || t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func nonNegative(v int) int32 {
	if v < 0 {
		return 0
	}
	return int32(v)
}
