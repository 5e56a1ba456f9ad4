// Package enricher refreshes per-repository data that the search sync does not
// carry: top contributors and weekly commit activity.
package enricher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github-trending/internal/database"
	custom_errors "github-trending/internal/errors"
	"github-trending/internal/github"
	"github-trending/internal/model"
	"github-trending/internal/retry"
)

const defaultFallbackPages = 5

// Upstream is the subset of the GitHub client the enricher needs.
type Upstream interface {
	ListTopContributors(ctx context.Context, owner, name string) ([]model.Contributor, error)
	ListCommitAuthors(ctx context.Context, owner, name, branch string, page int) ([]model.Contributor, bool, error)
	GetWeeklyCommitActivity(ctx context.Context, owner, name string) ([]model.CommitActivityWeek, error)
}

// Options tunes an Enricher.
type Options struct {
	BatchSize     int
	PacingDelay   time.Duration
	FallbackPages int
	Retry         retry.Policy
}

// PassResult counts what happened to each repository of a pass.
type PassResult struct {
	Processed int
	Skipped   int
	Failed    int
}

// Add returns the element-wise sum of r and o.
func (r PassResult) Add(o PassResult) PassResult {
	return PassResult{
		Processed: r.Processed + o.Processed,
		Skipped:   r.Skipped + o.Skipped,
		Failed:    r.Failed + o.Failed,
	}
}

// Enricher walks stored repositories and refreshes their secondary data.
type Enricher struct {
	store    database.Transactor
	upstream Upstream
	logger   *slog.Logger
	opts     Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEnricher creates a new Enricher instance.
func NewEnricher(store database.Transactor, upstream Upstream, logger *slog.Logger, opts Options) *Enricher {
	if opts.FallbackPages <= 0 {
		opts.FallbackPages = defaultFallbackPages
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 300
	}
	return &Enricher{
		store:    store,
		upstream: upstream,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
		sleep:    retry.Sleep,
	}
}

// ParseFullName splits an 'owner/name' string.
func ParseFullName(fullName string) (owner, name string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &custom_errors.ErrInvalidRepoFormat{Repo: fullName}
	}
	return parts[0], parts[1], nil
}

// outcome of refreshing one repository.
type outcome int

const (
	stored outcome = iota
	skipped
)

// RefreshContributors replaces the contributor set of one repository, or of
// the top repositories by stars when fullName is empty.
func (e *Enricher) RefreshContributors(ctx context.Context, fullName string) (PassResult, error) {
	return e.pass(ctx, "contributors", fullName, e.refreshContributors)
}

// RefreshCommitActivity replaces the weekly commit series of one repository,
// or of the top repositories by stars when fullName is empty.
func (e *Enricher) RefreshCommitActivity(ctx context.Context, fullName string) (PassResult, error) {
	return e.pass(ctx, "commit activity", fullName, e.refreshCommitActivity)
}

// RefreshAll runs the contributor pass and then the commit activity pass.
func (e *Enricher) RefreshAll(ctx context.Context) (PassResult, error) {
	res, err := e.RefreshContributors(ctx, "")
	if err != nil {
		return res, err
	}
	activity, err := e.RefreshCommitActivity(ctx, "")
	return res.Add(activity), err
}

func (e *Enricher) pass(ctx context.Context, kind, fullName string, refresh func(context.Context, database.RepositoryRef) (outcome, error)) (PassResult, error) {
	var res PassResult
	repos, err := e.targets(ctx, fullName)
	if err != nil {
		return res, err
	}

	logger := e.logger.With("pass", kind)
	logger.Info("Starting enrichment pass", "repositories", len(repos))

	for i, repo := range repos {
		if i > 0 {
			if err := e.sleep(ctx, e.opts.PacingDelay); err != nil {
				return res, err
			}
		}

		out, err := refresh(ctx, repo)
		if err == nil {
			if out == skipped {
				res.Skipped++
			} else {
				res.Processed++
			}
			continue
		}

		var gaveUp *custom_errors.GaveUpError
		if custom_errors.IsFatal(err) || errors.As(err, &gaveUp) || ctx.Err() != nil {
			logger.Error("Enrichment pass aborted", "repo", repo.FullName, "error", err)
			return res, fmt.Errorf("%s: %w", repo.FullName, err)
		}
		res.Failed++
		logger.Error("Failed to enrich repository", "repo", repo.FullName, "error", err)
	}

	logger.Info("Enrichment pass finished", "processed", res.Processed, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

func (e *Enricher) targets(ctx context.Context, fullName string) ([]database.RepositoryRef, error) {
	if fullName == "" {
		return e.store.ListRepositoriesForEnrichment(ctx, int32(e.opts.BatchSize))
	}
	if _, _, err := ParseFullName(fullName); err != nil {
		return nil, err
	}
	ref, err := e.store.GetRepositoryRefByFullName(ctx, fullName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", fullName, custom_errors.ErrUnknownRepository)
	}
	if err != nil {
		return nil, err
	}
	return []database.RepositoryRef{ref}, nil
}

// refreshContributors tries the all-time contributor list first. When upstream
// refuses to compute it for a large history, it tallies the authors of the most
// recent commits instead and flags the set as recent.
func (e *Enricher) refreshContributors(ctx context.Context, repo database.RepositoryRef) (outcome, error) {
	logger := e.logger.With("repo", repo.FullName)

	var contributors []model.Contributor
	err := e.opts.Retry.Do(ctx, "list contributors", func(ctx context.Context) error {
		var err error
		contributors, err = e.upstream.ListTopContributors(ctx, repo.Owner, repo.Name)
		return err
	})
	dataType := model.ContributorsAllTime

	switch {
	case errors.Is(err, custom_errors.ErrTooLarge):
		logger.Info("Contributor list too large, tallying recent commits instead")
		contributors, err = e.recentContributors(ctx, repo)
		if err != nil {
			return stored, err
		}
		dataType = model.ContributorsRecent
	case errors.Is(err, custom_errors.ErrNotFound):
		logger.Info("No contributors available")
		return skipped, nil
	case err != nil:
		return stored, err
	}

	if err := e.replaceContributors(ctx, repo.ID, contributors, dataType); err != nil {
		return stored, err
	}
	logger.Info("Contributors refreshed", "count", len(contributors), "data_type", string(dataType))
	return stored, nil
}

// recentContributors pages through the default branch history and returns the
// most frequent linked authors.
func (e *Enricher) recentContributors(ctx context.Context, repo database.RepositoryRef) ([]model.Contributor, error) {
	tally := make(map[int64]*model.Contributor)
	for page := 1; page <= e.opts.FallbackPages; page++ {
		var (
			authors []model.Contributor
			hasNext bool
		)
		err := e.opts.Retry.Do(ctx, "list commits", func(ctx context.Context) error {
			var err error
			authors, hasNext, err = e.upstream.ListCommitAuthors(ctx, repo.Owner, repo.Name, repo.DefaultBranch, page)
			return err
		})
		if errors.Is(err, custom_errors.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}

		for _, a := range authors {
			if c, ok := tally[a.GithubUserID]; ok {
				c.Contributions += a.Contributions
				continue
			}
			tally[a.GithubUserID] = &a
		}
		if !hasNext {
			break
		}
	}
	return topContributors(tally, github.TopContributorsLimit), nil
}

func topContributors(tally map[int64]*model.Contributor, limit int) []model.Contributor {
	result := make([]model.Contributor, 0, len(tally))
	for _, c := range tally {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Contributions != result[j].Contributions {
			return result[i].Contributions > result[j].Contributions
		}
		return result[i].Login < result[j].Login
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

// replaceContributors swaps the stored set and its metadata in one transaction.
func (e *Enricher) replaceContributors(ctx context.Context, repoID int64, contributors []model.Contributor, dataType model.ContributorsDataType) error {
	fetchedAt := pgtype.Timestamptz{Time: e.now().UTC(), Valid: true}
	return e.store.ExecTx(ctx, func(q database.Querier) error {
		if err := q.DeleteContributors(ctx, repoID); err != nil {
			return fmt.Errorf("delete contributors: %w", err)
		}
		if len(contributors) > 0 {
			if _, err := q.CreateContributors(ctx, prepareContributorBulkInsert(repoID, contributors, fetchedAt)); err != nil {
				return fmt.Errorf("insert contributors: %w", err)
			}
		}
		err := q.UpsertContributorMeta(ctx, database.UpsertContributorMetaParams{
			RepositoryID:         repoID,
			ContributorsDataType: string(dataType),
			ContributorCount:     int32(len(contributors)),
			FetchedAt:            fetchedAt,
		})
		if err != nil {
			return fmt.Errorf("upsert contributor meta: %w", err)
		}
		return nil
	})
}

// refreshCommitActivity replaces the weekly series when upstream has one ready.
func (e *Enricher) refreshCommitActivity(ctx context.Context, repo database.RepositoryRef) (outcome, error) {
	logger := e.logger.With("repo", repo.FullName)

	var weeks []model.CommitActivityWeek
	err := e.opts.Retry.Do(ctx, "commit activity", func(ctx context.Context) error {
		var err error
		weeks, err = e.upstream.GetWeeklyCommitActivity(ctx, repo.Owner, repo.Name)
		return err
	})
	switch {
	case errors.Is(err, custom_errors.ErrInProgress):
		logger.Info("Commit activity still being computed upstream, skipping")
		return skipped, nil
	case errors.Is(err, custom_errors.ErrNotFound):
		logger.Info("No commit activity available")
		return skipped, nil
	case err != nil:
		return stored, err
	}
	if len(weeks) == 0 {
		logger.Info("Empty commit activity, keeping stored series")
		return skipped, nil
	}

	err = e.store.ExecTx(ctx, func(q database.Querier) error {
		if err := q.DeleteCommitActivity(ctx, repo.ID); err != nil {
			return fmt.Errorf("delete commit activity: %w", err)
		}
		if _, err := q.CreateCommitActivity(ctx, prepareActivityBulkInsert(repo.ID, weeks)); err != nil {
			return fmt.Errorf("insert commit activity: %w", err)
		}
		return nil
	})
	if err != nil {
		return stored, err
	}
	logger.Info("Commit activity refreshed", "weeks", len(weeks))
	return stored, nil
}

func prepareContributorBulkInsert(repoID int64, contributors []model.Contributor, fetchedAt pgtype.Timestamptz) []database.CreateContributorsParams {
	params := make([]database.CreateContributorsParams, len(contributors))
	for i, c := range contributors {
		params[i] = database.CreateContributorsParams{
			RepositoryID:  repoID,
			GithubUserID:  c.GithubUserID,
			Login:         c.Login,
			AvatarUrl:     c.AvatarURL,
			ProfileUrl:    c.ProfileURL,
			Contributions: int32(c.Contributions),
			AccountType:   c.Type,
			FetchedAt:     fetchedAt,
		}
	}
	return params
}

func prepareActivityBulkInsert(repoID int64, weeks []model.CommitActivityWeek) []database.CreateCommitActivityParams {
	params := make([]database.CreateCommitActivityParams, len(weeks))
	for i, w := range weeks {
		params[i] = database.CreateCommitActivityParams{
			RepositoryID: repoID,
			Week:         pgtype.Timestamptz{Time: w.Week, Valid: true},
			Total:        int32(w.Total),
		}
	}
	return params
}
