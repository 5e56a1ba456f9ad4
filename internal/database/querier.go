// internal/database/querier.go
package database

import (
	"context"

	"github.com/google/uuid"
)

type Querier interface {
	CreateCommitActivity(ctx context.Context, arg []CreateCommitActivityParams) (int64, error)
	CreateContributors(ctx context.Context, arg []CreateContributorsParams) (int64, error)
	CreateJob(ctx context.Context, arg CreateJobParams) (BackgroundJob, error)
	CreateRepositoryLanguages(ctx context.Context, arg []CreateRepositoryLanguagesParams) (int64, error)
	DeleteCommitActivity(ctx context.Context, repositoryID int64) error
	DeleteContributors(ctx context.Context, repositoryID int64) error
	DeleteRepositoryLanguages(ctx context.Context, repositoryID int64) error
	FailRunningJobs(ctx context.Context, reason string) (int64, error)
	FinishJob(ctx context.Context, arg FinishJobParams) error
	GetJob(ctx context.Context, id uuid.UUID) (BackgroundJob, error)
	GetRepositoryOverview(ctx context.Context, fullName string) (RepositoryOverview, error)
	GetRepositoryRefByFullName(ctx context.Context, fullName string) (RepositoryRef, error)
	ListCommitActivity(ctx context.Context, repositoryID int64) ([]CommitActivity, error)
	ListContributors(ctx context.Context, repositoryID int64) ([]Contributor, error)
	ListRecentJobs(ctx context.Context, limit int32) ([]BackgroundJob, error)
	ListRepositoriesForEnrichment(ctx context.Context, limit int32) ([]RepositoryRef, error)
	ListRepositoryLanguages(ctx context.Context, repositoryID int64) ([]RepositoryLanguage, error)
	ListRepositoryOverview(ctx context.Context, arg ListRepositoryOverviewParams) ([]RepositoryOverview, error)
	ReleaseRepositoryName(ctx context.Context, arg ReleaseRepositoryNameParams) (int64, error)
	UpsertContributorMeta(ctx context.Context, arg UpsertContributorMetaParams) error
	UpsertRepository(ctx context.Context, arg UpsertRepositoryParams) (UpsertRepositoryRow, error)
	UpsertRepositoryStats(ctx context.Context, arg UpsertRepositoryStatsParams) error
}

var _ Querier = (*Queries)(nil)
