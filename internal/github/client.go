// internal/github/client.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	custom_errors "github-trending/internal/errors"
	"github-trending/internal/model"
)

const (
	// TopContributorsLimit bounds the primary contributor fetch.
	TopContributorsLimit = 30
	// CommitPageSize is the page size of the commit history fallback.
	CommitPageSize = 100

	defaultGraphQLURL = "https://api.github.com/graphql"
)

// Options configures a Client.
type Options struct {
	Token      string
	BaseURL    string // optional GitHub Enterprise REST base URL
	GraphQLURL string
}

// Client is a wrapper around the go-github client.
type Client struct {
	gh         *github.Client
	graphqlURL string
	logger     *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Token == "" {
		return nil, custom_errors.ErrMissingToken
	}
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: opts.Token},
	)
	tc := oauth2.NewClient(ctx, ts)

	gh := github.NewClient(tc)
	if opts.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL: %w", err)
		}
	}

	graphqlURL := opts.GraphQLURL
	if graphqlURL == "" {
		graphqlURL = defaultGraphQLURL
	}

	return &Client{
		gh:         gh,
		graphqlURL: graphqlURL,
		logger:     logger,
	}, nil
}

// ListTopContributors fetches the top contributors of a repository by
// all-time contribution count.
func (c *Client) ListTopContributors(ctx context.Context, owner, name string) ([]model.Contributor, error) {
	const op = "list contributors"
	opts := &github.ListContributorsOptions{
		ListOptions: github.ListOptions{PerPage: TopContributorsLimit},
	}

	contributors, resp, err := c.gh.Repositories.ListContributors(ctx, owner, name, opts)
	if err != nil {
		return nil, classify(op, resp, err)
	}
	// An empty repository answers 204 with no body.
	if resp != nil && resp.StatusCode == http.StatusNoContent {
		return nil, upstream(custom_errors.ErrNotFound, op, nil)
	}

	result := make([]model.Contributor, 0, len(contributors))
	for _, contributor := range contributors {
		if contributor.GetID() == 0 {
			continue
		}
		result = append(result, toInternalContributor(contributor))
	}
	if len(result) > TopContributorsLimit {
		result = result[:TopContributorsLimit]
	}
	return result, nil
}

// ListCommitAuthors returns the linked GitHub authors of one page of the
// commit history of branch, one entry per commit. Commits whose author has
// no GitHub account are left out. hasNext reports whether another page exists.
func (c *Client) ListCommitAuthors(ctx context.Context, owner, name, branch string, page int) (authors []model.Contributor, hasNext bool, err error) {
	const op = "list commits"
	opts := &github.CommitsListOptions{
		SHA: branch,
		ListOptions: github.ListOptions{
			PerPage: CommitPageSize,
			Page:    page,
		},
	}

	c.logger.Debug("Fetching commits page", "owner", owner, "repo", name, "page", page)
	commits, resp, err := c.gh.Repositories.ListCommits(ctx, owner, name, opts)
	if err != nil {
		return nil, false, classify(op, resp, err)
	}

	for _, commit := range commits {
		author := commit.GetAuthor()
		if author.GetID() == 0 {
			continue
		}
		authors = append(authors, model.Contributor{
			GithubUserID:  author.GetID(),
			Login:         author.GetLogin(),
			AvatarURL:     author.GetAvatarURL(),
			ProfileURL:    author.GetHTMLURL(),
			Contributions: 1,
			Type:          author.GetType(),
		})
	}
	return authors, resp.NextPage != 0 && len(commits) == CommitPageSize, nil
}

// GetWeeklyCommitActivity fetches the last year of commit totals grouped by week.
// It returns an error matching ErrInProgress while upstream is still computing.
func (c *Client) GetWeeklyCommitActivity(ctx context.Context, owner, name string) ([]model.CommitActivityWeek, error) {
	const op = "commit activity"
	weeks, resp, err := c.gh.Repositories.ListCommitActivity(ctx, owner, name)
	if err != nil {
		return nil, classify(op, resp, err)
	}
	if resp != nil && resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	result := make([]model.CommitActivityWeek, 0, len(weeks))
	for _, w := range weeks {
		result = append(result, model.CommitActivityWeek{
			Week:  w.GetWeek().Time.UTC(),
			Total: w.GetTotal(),
		})
	}
	return result, nil
}

// toInternalContributor translates a github.Contributor object to our internal model.Contributor.
func toInternalContributor(c *github.Contributor) model.Contributor {
	return model.Contributor{
		GithubUserID:  c.GetID(),
		Login:         c.GetLogin(),
		AvatarURL:     c.GetAvatarURL(),
		ProfileURL:    c.GetHTMLURL(),
		Contributions: c.GetContributions(),
		Type:          c.GetType(),
	}
}
