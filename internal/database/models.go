// internal/database/models.go
package database

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type RepositoryRef struct {
	ID            int64  `json:"id"`
	FullName      string `json:"full_name"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

type RepositoryLanguage struct {
	Language   string  `json:"language"`
	Color      string  `json:"color"`
	Bytes      int64   `json:"bytes"`
	Percentage float64 `json:"percentage"`
}

type Contributor struct {
	GithubUserID  int64              `json:"github_user_id"`
	Login         string             `json:"login"`
	AvatarUrl     string             `json:"avatar_url"`
	ProfileUrl    string             `json:"profile_url"`
	Contributions int32              `json:"contributions"`
	AccountType   string             `json:"account_type"`
	FetchedAt     pgtype.Timestamptz `json:"fetched_at"`
}

type CommitActivity struct {
	Week  pgtype.Timestamptz `json:"week"`
	Total int32              `json:"total"`
}

// RepositoryOverview is a row of the repository_overview view.
type RepositoryOverview struct {
	ID                   int64              `json:"id"`
	GithubID             int64              `json:"github_id"`
	FullName             string             `json:"full_name"`
	Owner                string             `json:"owner"`
	Name                 string             `json:"name"`
	OwnerAvatarUrl       string             `json:"owner_avatar_url"`
	Description          pgtype.Text        `json:"description"`
	Url                  string             `json:"url"`
	Homepage             pgtype.Text        `json:"homepage"`
	StargazersCount      int32              `json:"stargazers_count"`
	ForksCount           int32              `json:"forks_count"`
	WatchersCount        int32              `json:"watchers_count"`
	OpenIssuesCount      int32              `json:"open_issues_count"`
	PrimaryLanguage      pgtype.Text        `json:"primary_language"`
	Topics               []string           `json:"topics"`
	LicenseSpdxID        pgtype.Text        `json:"license_spdx_id"`
	PushedAt             pgtype.Timestamptz `json:"pushed_at"`
	IsArchived           bool               `json:"is_archived"`
	DefaultBranch        string             `json:"default_branch"`
	LastFetched          pgtype.Timestamptz `json:"last_fetched"`
	TotalCommits         int32              `json:"total_commits"`
	StarsGrowth          int32              `json:"stars_growth"`
	ActivityScore        float64            `json:"activity_score"`
	HealthScore          int32              `json:"health_score"`
	DaysSinceLastCommit  pgtype.Int4        `json:"days_since_last_commit"`
	LatestReleaseTag     pgtype.Text        `json:"latest_release_tag"`
	LatestReleaseDate    pgtype.Timestamptz `json:"latest_release_date"`
	TotalReleases        int32              `json:"total_releases"`
	ContributorsDataType pgtype.Text        `json:"contributors_data_type"`
	ContributorCount     int32              `json:"contributor_count"`
}

type BackgroundJob struct {
	ID             uuid.UUID          `json:"id"`
	JobType        string             `json:"job_type"`
	Scope          string             `json:"scope"`
	Status         string             `json:"status"`
	StartedAt      pgtype.Timestamptz `json:"started_at"`
	CompletedAt    pgtype.Timestamptz `json:"completed_at"`
	Error          pgtype.Text        `json:"error"`
	ItemsProcessed int32              `json:"items_processed"`
	ItemsSkipped   int32              `json:"items_skipped"`
	ItemsFailed    int32              `json:"items_failed"`
}
