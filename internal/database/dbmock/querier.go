// Package dbmock provides testify mocks of the database interfaces.
package dbmock

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github-trending/internal/database"
)

// MockQuerier is a mock of the database.Querier interface.
type MockQuerier struct {
	mock.Mock
}

var _ database.Querier = (*MockQuerier)(nil)

func (m *MockQuerier) CreateCommitActivity(ctx context.Context, arg []database.CreateCommitActivityParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) CreateContributors(ctx context.Context, arg []database.CreateContributorsParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) CreateJob(ctx context.Context, arg database.CreateJobParams) (database.BackgroundJob, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.BackgroundJob), args.Error(1)
}
func (m *MockQuerier) CreateRepositoryLanguages(ctx context.Context, arg []database.CreateRepositoryLanguagesParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) DeleteCommitActivity(ctx context.Context, repositoryID int64) error {
	args := m.Called(ctx, repositoryID)
	return args.Error(0)
}
func (m *MockQuerier) DeleteContributors(ctx context.Context, repositoryID int64) error {
	args := m.Called(ctx, repositoryID)
	return args.Error(0)
}
func (m *MockQuerier) DeleteRepositoryLanguages(ctx context.Context, repositoryID int64) error {
	args := m.Called(ctx, repositoryID)
	return args.Error(0)
}
func (m *MockQuerier) FailRunningJobs(ctx context.Context, reason string) (int64, error) {
	args := m.Called(ctx, reason)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) FinishJob(ctx context.Context, arg database.FinishJobParams) error {
	args := m.Called(ctx, arg)
	return args.Error(0)
}
func (m *MockQuerier) GetJob(ctx context.Context, id uuid.UUID) (database.BackgroundJob, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(database.BackgroundJob), args.Error(1)
}
func (m *MockQuerier) GetRepositoryOverview(ctx context.Context, fullName string) (database.RepositoryOverview, error) {
	args := m.Called(ctx, fullName)
	return args.Get(0).(database.RepositoryOverview), args.Error(1)
}
func (m *MockQuerier) GetRepositoryRefByFullName(ctx context.Context, fullName string) (database.RepositoryRef, error) {
	args := m.Called(ctx, fullName)
	return args.Get(0).(database.RepositoryRef), args.Error(1)
}
func (m *MockQuerier) ListCommitActivity(ctx context.Context, repositoryID int64) ([]database.CommitActivity, error) {
	args := m.Called(ctx, repositoryID)
	return args.Get(0).([]database.CommitActivity), args.Error(1)
}
func (m *MockQuerier) ListContributors(ctx context.Context, repositoryID int64) ([]database.Contributor, error) {
	args := m.Called(ctx, repositoryID)
	return args.Get(0).([]database.Contributor), args.Error(1)
}
func (m *MockQuerier) ListRecentJobs(ctx context.Context, limit int32) ([]database.BackgroundJob, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]database.BackgroundJob), args.Error(1)
}
func (m *MockQuerier) ListRepositoriesForEnrichment(ctx context.Context, limit int32) ([]database.RepositoryRef, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]database.RepositoryRef), args.Error(1)
}
func (m *MockQuerier) ListRepositoryLanguages(ctx context.Context, repositoryID int64) ([]database.RepositoryLanguage, error) {
	args := m.Called(ctx, repositoryID)
	return args.Get(0).([]database.RepositoryLanguage), args.Error(1)
}
func (m *MockQuerier) ListRepositoryOverview(ctx context.Context, arg database.ListRepositoryOverviewParams) ([]database.RepositoryOverview, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]database.RepositoryOverview), args.Error(1)
}
func (m *MockQuerier) ReleaseRepositoryName(ctx context.Context, arg database.ReleaseRepositoryNameParams) (int64, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuerier) UpsertContributorMeta(ctx context.Context, arg database.UpsertContributorMetaParams) error {
	args := m.Called(ctx, arg)
	return args.Error(0)
}
func (m *MockQuerier) UpsertRepository(ctx context.Context, arg database.UpsertRepositoryParams) (database.UpsertRepositoryRow, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.UpsertRepositoryRow), args.Error(1)
}
func (m *MockQuerier) UpsertRepositoryStats(ctx context.Context, arg database.UpsertRepositoryStatsParams) error {
	args := m.Called(ctx, arg)
	return args.Error(0)
}

// MockStore is a database.Transactor whose transactions run directly against
// the embedded MockQuerier.
type MockStore struct {
	MockQuerier
	Transactions int
}

var _ database.Transactor = (*MockStore)(nil)

func (m *MockStore) ExecTx(ctx context.Context, fn func(database.Querier) error) error {
	m.Transactions++
	return fn(m)
}
