// internal/database/enrichment.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const deleteContributors = `-- name: DeleteContributors :exec
DELETE FROM contributors WHERE repository_id = $1
`

func (q *Queries) DeleteContributors(ctx context.Context, repositoryID int64) error {
	_, err := q.db.Exec(ctx, deleteContributors, repositoryID)
	return err
}

type CreateContributorsParams struct {
	RepositoryID  int64
	GithubUserID  int64
	Login         string
	AvatarUrl     string
	ProfileUrl    string
	Contributions int32
	AccountType   string
	FetchedAt     pgtype.Timestamptz
}

func (q *Queries) CreateContributors(ctx context.Context, arg []CreateContributorsParams) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"contributors"},
		[]string{"repository_id", "github_user_id", "login", "avatar_url", "profile_url", "contributions", "account_type", "fetched_at"},
		pgx.CopyFromSlice(len(arg), func(i int) ([]any, error) {
			c := arg[i]
			return []any{c.RepositoryID, c.GithubUserID, c.Login, c.AvatarUrl, c.ProfileUrl, c.Contributions, c.AccountType, c.FetchedAt}, nil
		}),
	)
}

const listContributors = `-- name: ListContributors :many
SELECT github_user_id, login, avatar_url, profile_url, contributions, account_type, fetched_at
FROM contributors
WHERE repository_id = $1
ORDER BY contributions DESC, login
`

func (q *Queries) ListContributors(ctx context.Context, repositoryID int64) ([]Contributor, error) {
	rows, err := q.db.Query(ctx, listContributors, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Contributor{}
	for rows.Next() {
		var i Contributor
		if err := rows.Scan(
			&i.GithubUserID,
			&i.Login,
			&i.AvatarUrl,
			&i.ProfileUrl,
			&i.Contributions,
			&i.AccountType,
			&i.FetchedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertContributorMeta = `-- name: UpsertContributorMeta :exec
INSERT INTO repository_contributor_meta (repository_id, contributors_data_type, contributor_count, fetched_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (repository_id) DO UPDATE SET
    contributors_data_type = EXCLUDED.contributors_data_type,
    contributor_count      = EXCLUDED.contributor_count,
    fetched_at             = EXCLUDED.fetched_at
`

type UpsertContributorMetaParams struct {
	RepositoryID         int64
	ContributorsDataType string
	ContributorCount     int32
	FetchedAt            pgtype.Timestamptz
}

func (q *Queries) UpsertContributorMeta(ctx context.Context, arg UpsertContributorMetaParams) error {
	_, err := q.db.Exec(ctx, upsertContributorMeta,
		arg.RepositoryID,
		arg.ContributorsDataType,
		arg.ContributorCount,
		arg.FetchedAt,
	)
	return err
}

const deleteCommitActivity = `-- name: DeleteCommitActivity :exec
DELETE FROM commit_activity WHERE repository_id = $1
`

func (q *Queries) DeleteCommitActivity(ctx context.Context, repositoryID int64) error {
	_, err := q.db.Exec(ctx, deleteCommitActivity, repositoryID)
	return err
}

type CreateCommitActivityParams struct {
	RepositoryID int64
	Week         pgtype.Timestamptz
	Total        int32
}

func (q *Queries) CreateCommitActivity(ctx context.Context, arg []CreateCommitActivityParams) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"commit_activity"},
		[]string{"repository_id", "week", "total"},
		pgx.CopyFromSlice(len(arg), func(i int) ([]any, error) {
			return []any{arg[i].RepositoryID, arg[i].Week, arg[i].Total}, nil
		}),
	)
}

const listCommitActivity = `-- name: ListCommitActivity :many
SELECT week, total
FROM commit_activity
WHERE repository_id = $1
ORDER BY week
`

func (q *Queries) ListCommitActivity(ctx context.Context, repositoryID int64) ([]CommitActivity, error) {
	rows, err := q.db.Query(ctx, listCommitActivity, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CommitActivity{}
	for rows.Next() {
		var i CommitActivity
		if err := rows.Scan(&i.Week, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
