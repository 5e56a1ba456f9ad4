// internal/database/repositories.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const upsertRepository = `-- name: UpsertRepository :one
WITH prev AS (
    SELECT stargazers_count, forks_count FROM repositories WHERE github_id = $1
)
INSERT INTO repositories (
    github_id, full_name, owner, name, owner_avatar_url, description, url, homepage,
    stargazers_count, forks_count, watchers_count, open_issues_count, size_kb,
    primary_language, topics, license_key, license_name, license_spdx_id,
    repo_created_at, repo_updated_at, pushed_at,
    is_archived, is_disabled, is_fork, is_template,
    has_wiki, has_pages, has_discussions, has_issues, has_projects,
    default_branch, subscribers_count, network_count, last_fetched
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8,
    $9, $10, $11, $12, $13,
    $14, $15, $16, $17, $18,
    $19, $20, $21,
    $22, $23, $24, $25,
    $26, $27, $28, $29, $30,
    $31, $32, $33, $34
)
ON CONFLICT (github_id) DO UPDATE SET
    full_name         = EXCLUDED.full_name,
    owner             = EXCLUDED.owner,
    name              = EXCLUDED.name,
    owner_avatar_url  = EXCLUDED.owner_avatar_url,
    description       = EXCLUDED.description,
    url               = EXCLUDED.url,
    homepage          = EXCLUDED.homepage,
    stargazers_count  = EXCLUDED.stargazers_count,
    forks_count       = EXCLUDED.forks_count,
    watchers_count    = EXCLUDED.watchers_count,
    open_issues_count = EXCLUDED.open_issues_count,
    size_kb           = EXCLUDED.size_kb,
    primary_language  = EXCLUDED.primary_language,
    topics            = EXCLUDED.topics,
    license_key       = EXCLUDED.license_key,
    license_name      = EXCLUDED.license_name,
    license_spdx_id   = EXCLUDED.license_spdx_id,
    repo_created_at   = EXCLUDED.repo_created_at,
    repo_updated_at   = EXCLUDED.repo_updated_at,
    pushed_at         = EXCLUDED.pushed_at,
    is_archived       = EXCLUDED.is_archived,
    is_disabled       = EXCLUDED.is_disabled,
    is_fork           = EXCLUDED.is_fork,
    is_template       = EXCLUDED.is_template,
    has_wiki          = EXCLUDED.has_wiki,
    has_pages         = EXCLUDED.has_pages,
    has_discussions   = EXCLUDED.has_discussions,
    has_issues        = EXCLUDED.has_issues,
    has_projects      = EXCLUDED.has_projects,
    default_branch    = EXCLUDED.default_branch,
    subscribers_count = EXCLUDED.subscribers_count,
    network_count     = EXCLUDED.network_count,
    last_fetched      = EXCLUDED.last_fetched
RETURNING id, (SELECT stargazers_count FROM prev), (SELECT forks_count FROM prev)
`

type UpsertRepositoryParams struct {
	GithubID         int64
	FullName         string
	Owner            string
	Name             string
	OwnerAvatarUrl   string
	Description      pgtype.Text
	Url              string
	Homepage         pgtype.Text
	StargazersCount  int32
	ForksCount       int32
	WatchersCount    int32
	OpenIssuesCount  int32
	SizeKb           int32
	PrimaryLanguage  pgtype.Text
	Topics           []string
	LicenseKey       pgtype.Text
	LicenseName      pgtype.Text
	LicenseSpdxID    pgtype.Text
	RepoCreatedAt    pgtype.Timestamptz
	RepoUpdatedAt    pgtype.Timestamptz
	PushedAt         pgtype.Timestamptz
	IsArchived       bool
	IsDisabled       bool
	IsFork           bool
	IsTemplate       bool
	HasWiki          bool
	HasPages         bool
	HasDiscussions   bool
	HasIssues        bool
	HasProjects      bool
	DefaultBranch    string
	SubscribersCount int32
	NetworkCount     int32
	LastFetched      pgtype.Timestamptz
}

// UpsertRepositoryRow carries the counters stored before the upsert; they are
// NULL when the repository is new.
type UpsertRepositoryRow struct {
	ID        int64
	PrevStars pgtype.Int4
	PrevForks pgtype.Int4
}

func (q *Queries) UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (UpsertRepositoryRow, error) {
	topics := arg.Topics
	if topics == nil {
		topics = []string{}
	}
	row := q.db.QueryRow(ctx, upsertRepository,
		arg.GithubID,
		arg.FullName,
		arg.Owner,
		arg.Name,
		arg.OwnerAvatarUrl,
		arg.Description,
		arg.Url,
		arg.Homepage,
		arg.StargazersCount,
		arg.ForksCount,
		arg.WatchersCount,
		arg.OpenIssuesCount,
		arg.SizeKb,
		arg.PrimaryLanguage,
		topics,
		arg.LicenseKey,
		arg.LicenseName,
		arg.LicenseSpdxID,
		arg.RepoCreatedAt,
		arg.RepoUpdatedAt,
		arg.PushedAt,
		arg.IsArchived,
		arg.IsDisabled,
		arg.IsFork,
		arg.IsTemplate,
		arg.HasWiki,
		arg.HasPages,
		arg.HasDiscussions,
		arg.HasIssues,
		arg.HasProjects,
		arg.DefaultBranch,
		arg.SubscribersCount,
		arg.NetworkCount,
		arg.LastFetched,
	)
	var i UpsertRepositoryRow
	err := row.Scan(&i.ID, &i.PrevStars, &i.PrevForks)
	return i, err
}

const releaseRepositoryName = `-- name: ReleaseRepositoryName :execrows
UPDATE repositories
SET full_name = full_name || '#' || github_id::text
WHERE full_name = $1 AND github_id <> $2
`

type ReleaseRepositoryNameParams struct {
	FullName string
	GithubID int64
}

// ReleaseRepositoryName frees full_name from a stored row that belongs to a
// different repository. The row keeps its data and gets its current name back
// the next time it is synced.
func (q *Queries) ReleaseRepositoryName(ctx context.Context, arg ReleaseRepositoryNameParams) (int64, error) {
	result, err := q.db.Exec(ctx, releaseRepositoryName, arg.FullName, arg.GithubID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteRepositoryLanguages = `-- name: DeleteRepositoryLanguages :exec
DELETE FROM repository_languages WHERE repository_id = $1
`

func (q *Queries) DeleteRepositoryLanguages(ctx context.Context, repositoryID int64) error {
	_, err := q.db.Exec(ctx, deleteRepositoryLanguages, repositoryID)
	return err
}

type CreateRepositoryLanguagesParams struct {
	RepositoryID int64
	Language     string
	Color        string
	Bytes        int64
	Percentage   float64
}

// CreateRepositoryLanguages bulk-inserts with COPY.
func (q *Queries) CreateRepositoryLanguages(ctx context.Context, arg []CreateRepositoryLanguagesParams) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"repository_languages"},
		[]string{"repository_id", "language", "color", "bytes", "percentage"},
		pgx.CopyFromSlice(len(arg), func(i int) ([]any, error) {
			return []any{arg[i].RepositoryID, arg[i].Language, arg[i].Color, arg[i].Bytes, arg[i].Percentage}, nil
		}),
	)
}

const listRepositoryLanguages = `-- name: ListRepositoryLanguages :many
SELECT language, color, bytes, percentage
FROM repository_languages
WHERE repository_id = $1
ORDER BY bytes DESC, language
`

func (q *Queries) ListRepositoryLanguages(ctx context.Context, repositoryID int64) ([]RepositoryLanguage, error) {
	rows, err := q.db.Query(ctx, listRepositoryLanguages, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RepositoryLanguage{}
	for rows.Next() {
		var i RepositoryLanguage
		if err := rows.Scan(&i.Language, &i.Color, &i.Bytes, &i.Percentage); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertRepositoryStats = `-- name: UpsertRepositoryStats :exec
INSERT INTO repository_stats (
    repository_id, total_commits, stars_growth, forks_growth,
    activity_score, health_score, avg_issue_close_hours, avg_pr_merge_hours,
    days_since_last_commit, days_since_last_release,
    latest_release_tag, latest_release_date, total_releases, calculated_at
) VALUES (
    $1, $2, COALESCE($3::integer, 0), COALESCE($4::integer, 0),
    $5, $6, $7, $8,
    $9, $10,
    $11, $12, $13, $14
)
ON CONFLICT (repository_id) DO UPDATE SET
    total_commits           = EXCLUDED.total_commits,
    stars_growth            = COALESCE($3::integer, repository_stats.stars_growth),
    forks_growth            = COALESCE($4::integer, repository_stats.forks_growth),
    activity_score          = EXCLUDED.activity_score,
    health_score            = EXCLUDED.health_score,
    avg_issue_close_hours   = EXCLUDED.avg_issue_close_hours,
    avg_pr_merge_hours      = EXCLUDED.avg_pr_merge_hours,
    days_since_last_commit  = EXCLUDED.days_since_last_commit,
    days_since_last_release = EXCLUDED.days_since_last_release,
    latest_release_tag      = EXCLUDED.latest_release_tag,
    latest_release_date     = EXCLUDED.latest_release_date,
    total_releases          = EXCLUDED.total_releases,
    calculated_at           = EXCLUDED.calculated_at
`

// UpsertRepositoryStatsParams leaves StarsGrowth/ForksGrowth NULL to keep the
// stored growth untouched.
type UpsertRepositoryStatsParams struct {
	RepositoryID         int64
	TotalCommits         int32
	StarsGrowth          pgtype.Int4
	ForksGrowth          pgtype.Int4
	ActivityScore        float64
	HealthScore          int32
	AvgIssueCloseHours   pgtype.Float8
	AvgPrMergeHours      pgtype.Float8
	DaysSinceLastCommit  pgtype.Int4
	DaysSinceLastRelease pgtype.Int4
	LatestReleaseTag     pgtype.Text
	LatestReleaseDate    pgtype.Timestamptz
	TotalReleases        int32
	CalculatedAt         pgtype.Timestamptz
}

func (q *Queries) UpsertRepositoryStats(ctx context.Context, arg UpsertRepositoryStatsParams) error {
	_, err := q.db.Exec(ctx, upsertRepositoryStats,
		arg.RepositoryID,
		arg.TotalCommits,
		arg.StarsGrowth,
		arg.ForksGrowth,
		arg.ActivityScore,
		arg.HealthScore,
		arg.AvgIssueCloseHours,
		arg.AvgPrMergeHours,
		arg.DaysSinceLastCommit,
		arg.DaysSinceLastRelease,
		arg.LatestReleaseTag,
		arg.LatestReleaseDate,
		arg.TotalReleases,
		arg.CalculatedAt,
	)
	return err
}

const listRepositoriesForEnrichment = `-- name: ListRepositoriesForEnrichment :many
SELECT id, full_name, owner, name, default_branch
FROM repositories
ORDER BY stargazers_count DESC, id DESC
LIMIT $1
`

func (q *Queries) ListRepositoriesForEnrichment(ctx context.Context, limit int32) ([]RepositoryRef, error) {
	rows, err := q.db.Query(ctx, listRepositoriesForEnrichment, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RepositoryRef
	for rows.Next() {
		var i RepositoryRef
		if err := rows.Scan(&i.ID, &i.FullName, &i.Owner, &i.Name, &i.DefaultBranch); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRepositoryRefByFullName = `-- name: GetRepositoryRefByFullName :one
SELECT id, full_name, owner, name, default_branch
FROM repositories
WHERE full_name = $1
`

func (q *Queries) GetRepositoryRefByFullName(ctx context.Context, fullName string) (RepositoryRef, error) {
	row := q.db.QueryRow(ctx, getRepositoryRefByFullName, fullName)
	var i RepositoryRef
	err := row.Scan(&i.ID, &i.FullName, &i.Owner, &i.Name, &i.DefaultBranch)
	return i, err
}

const repositoryOverviewColumns = `id, github_id, full_name, owner, name, owner_avatar_url, description, url, homepage,
    stargazers_count, forks_count, watchers_count, open_issues_count, primary_language, topics,
    license_spdx_id, pushed_at, is_archived, default_branch, last_fetched,
    total_commits, stars_growth, activity_score, health_score, days_since_last_commit,
    latest_release_tag, latest_release_date, total_releases, contributors_data_type, contributor_count`

const listRepositoryOverview = `-- name: ListRepositoryOverview :many
SELECT ` + repositoryOverviewColumns + `
FROM repository_overview
WHERE $1::integer IS NULL OR (stargazers_count, id) < ($1::integer, $2::bigint)
ORDER BY stargazers_count DESC, id DESC
LIMIT $3
`

// ListRepositoryOverviewParams is a keyset cursor; a NULL AfterStars starts
// from the top of the leaderboard.
type ListRepositoryOverviewParams struct {
	AfterStars pgtype.Int4
	AfterID    pgtype.Int8
	Limit      int32
}

func (q *Queries) ListRepositoryOverview(ctx context.Context, arg ListRepositoryOverviewParams) ([]RepositoryOverview, error) {
	rows, err := q.db.Query(ctx, listRepositoryOverview, arg.AfterStars, arg.AfterID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RepositoryOverview{}
	for rows.Next() {
		i, err := scanRepositoryOverview(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRepositoryOverview = `-- name: GetRepositoryOverview :one
SELECT ` + repositoryOverviewColumns + `
FROM repository_overview
WHERE full_name = $1
`

func (q *Queries) GetRepositoryOverview(ctx context.Context, fullName string) (RepositoryOverview, error) {
	return scanRepositoryOverview(q.db.QueryRow(ctx, getRepositoryOverview, fullName))
}

func scanRepositoryOverview(row pgx.Row) (RepositoryOverview, error) {
	var i RepositoryOverview
	err := row.Scan(
		&i.ID,
		&i.GithubID,
		&i.FullName,
		&i.Owner,
		&i.Name,
		&i.OwnerAvatarUrl,
		&i.Description,
		&i.Url,
		&i.Homepage,
		&i.StargazersCount,
		&i.ForksCount,
		&i.WatchersCount,
		&i.OpenIssuesCount,
		&i.PrimaryLanguage,
		&i.Topics,
		&i.LicenseSpdxID,
		&i.PushedAt,
		&i.IsArchived,
		&i.DefaultBranch,
		&i.LastFetched,
		&i.TotalCommits,
		&i.StarsGrowth,
		&i.ActivityScore,
		&i.HealthScore,
		&i.DaysSinceLastCommit,
		&i.LatestReleaseTag,
		&i.LatestReleaseDate,
		&i.TotalReleases,
		&i.ContributorsDataType,
		&i.ContributorCount,
	)
	return i, err
}
