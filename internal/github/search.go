// internal/github/search.go
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	custom_errors "github-trending/internal/errors"
	"github-trending/internal/model"
)

// MaxSearchPageSize is the largest page the search query asks for.
const MaxSearchPageSize = 20

const searchRepositoriesQuery = `query($q: String!, $first: Int!, $after: String) {
  search(query: $q, type: REPOSITORY, first: $first, after: $after) {
    repositoryCount
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on Repository {
        databaseId
        nameWithOwner
        name
        owner { login avatarUrl }
        description
        url
        homepageUrl
        stargazerCount
        forkCount
        diskUsage
        watchers { totalCount }
        issues(states: OPEN) { totalCount }
        pullRequests(states: OPEN) { totalCount }
        primaryLanguage { name }
        languages(first: 20, orderBy: {field: SIZE, direction: DESC}) {
          totalSize
          edges { size node { name color } }
        }
        repositoryTopics(first: 20) { nodes { topic { name } } }
        licenseInfo { key name spdxId }
        createdAt
        updatedAt
        pushedAt
        isArchived
        isDisabled
        isFork
        isTemplate
        hasWikiEnabled
        hasIssuesEnabled
        hasProjectsEnabled
        hasDiscussionsEnabled
        defaultBranchRef {
          name
          target { ... on Commit { history { totalCount } } }
        }
        releases(first: 1, orderBy: {field: CREATED_AT, direction: DESC}) {
          totalCount
          nodes { tagName publishedAt }
        }
        closedIssues: issues(states: CLOSED, first: 20, orderBy: {field: UPDATED_AT, direction: DESC}) {
          nodes { createdAt closedAt }
        }
        mergedPullRequests: pullRequests(states: MERGED, first: 20, orderBy: {field: UPDATED_AT, direction: DESC}) {
          nodes { createdAt mergedAt }
        }
      }
    }
  }
}`

// SearchPage is one batch of search results.
type SearchPage struct {
	Repositories []model.Repository
	TotalCount   int
	HasNextPage  bool
	EndCursor    string
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// graphQLTimeoutMessages are the untyped messages upstream returns when a
// query ran out of time on its side. Retrying them can succeed.
var graphQLTimeoutMessages = []string{"something went wrong while executing your query", "timeout"}

func (e graphQLError) isTimeout() bool {
	if e.Type != "" || e.Extensions.Code != "" {
		return false
	}
	msg := strings.ToLower(e.Message)
	for _, marker := range graphQLTimeoutMessages {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

type searchResponse struct {
	Data struct {
		Search struct {
			RepositoryCount int `json:"repositoryCount"`
			PageInfo        struct {
				HasNextPage bool    `json:"hasNextPage"`
				EndCursor   *string `json:"endCursor"`
			} `json:"pageInfo"`
			Nodes []repositoryNode `json:"nodes"`
		} `json:"search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type totalCount struct {
	TotalCount int `json:"totalCount"`
}

type repositoryNode struct {
	DatabaseID    int64   `json:"databaseId"`
	NameWithOwner string  `json:"nameWithOwner"`
	Name          string  `json:"name"`
	Owner         struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatarUrl"`
	} `json:"owner"`
	Description     *string    `json:"description"`
	URL             string     `json:"url"`
	HomepageURL     *string    `json:"homepageUrl"`
	StargazerCount  int        `json:"stargazerCount"`
	ForkCount       int        `json:"forkCount"`
	DiskUsage       int        `json:"diskUsage"`
	Watchers        totalCount `json:"watchers"`
	Issues          totalCount `json:"issues"`
	PullRequests    totalCount `json:"pullRequests"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	Languages struct {
		TotalSize int64 `json:"totalSize"`
		Edges     []struct {
			Size int64 `json:"size"`
			Node struct {
				Name  string  `json:"name"`
				Color *string `json:"color"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"languages"`
	RepositoryTopics struct {
		Nodes []struct {
			Topic struct {
				Name string `json:"name"`
			} `json:"topic"`
		} `json:"nodes"`
	} `json:"repositoryTopics"`
	LicenseInfo *struct {
		Key    string  `json:"key"`
		Name   string  `json:"name"`
		SpdxID *string `json:"spdxId"`
	} `json:"licenseInfo"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
	PushedAt              *time.Time `json:"pushedAt"`
	IsArchived            bool       `json:"isArchived"`
	IsDisabled            bool       `json:"isDisabled"`
	IsFork                bool       `json:"isFork"`
	IsTemplate            bool       `json:"isTemplate"`
	HasWikiEnabled        bool       `json:"hasWikiEnabled"`
	HasIssuesEnabled      bool       `json:"hasIssuesEnabled"`
	HasProjectsEnabled    bool       `json:"hasProjectsEnabled"`
	HasDiscussionsEnabled bool       `json:"hasDiscussionsEnabled"`
	DefaultBranchRef      *struct {
		Name   string `json:"name"`
		Target struct {
			History *totalCount `json:"history"`
		} `json:"target"`
	} `json:"defaultBranchRef"`
	Releases struct {
		TotalCount int `json:"totalCount"`
		Nodes      []struct {
			TagName     string     `json:"tagName"`
			PublishedAt *time.Time `json:"publishedAt"`
		} `json:"nodes"`
	} `json:"releases"`
	ClosedIssues struct {
		Nodes []struct {
			CreatedAt time.Time  `json:"createdAt"`
			ClosedAt  *time.Time `json:"closedAt"`
		} `json:"nodes"`
	} `json:"closedIssues"`
	MergedPullRequests struct {
		Nodes []struct {
			CreatedAt time.Time  `json:"createdAt"`
			MergedAt  *time.Time `json:"mergedAt"`
		} `json:"nodes"`
	} `json:"mergedPullRequests"`
}

// SearchRepositories fetches one page of repositories matching query, most
// starred first. An empty cursor requests the first page.
func (c *Client) SearchRepositories(ctx context.Context, query string, pageSize int, cursor string) (*SearchPage, error) {
	const op = "search repositories"
	if pageSize <= 0 || pageSize > MaxSearchPageSize {
		pageSize = MaxSearchPageSize
	}

	vars := map[string]any{"q": query, "first": pageSize}
	if cursor != "" {
		vars["after"] = cursor
	}
	req, err := c.gh.NewRequest(http.MethodPost, c.graphqlURL, &graphQLRequest{Query: searchRepositoriesQuery, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out searchResponse
	resp, err := c.gh.Do(ctx, req, &out)
	if err != nil {
		return nil, classify(op, resp, err)
	}
	if err := graphQLErrors(op, out.Errors); err != nil {
		return nil, err
	}

	search := out.Data.Search
	page := &SearchPage{
		Repositories: make([]model.Repository, 0, len(search.Nodes)),
		TotalCount:   search.RepositoryCount,
		HasNextPage:  search.PageInfo.HasNextPage,
	}
	if search.PageInfo.EndCursor != nil {
		page.EndCursor = *search.PageInfo.EndCursor
	}
	for _, node := range search.Nodes {
		// Non-repository search hits decode to empty nodes.
		if node.DatabaseID == 0 {
			continue
		}
		page.Repositories = append(page.Repositories, toInternalRepository(node))
	}
	return page, nil
}

func graphQLErrors(op string, errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	cause := fmt.Errorf("graphql: %s", strings.Join(msgs, "; "))

	switch errs[0].Type {
	case "RATE_LIMITED":
		return &rateLimitError{UpstreamError: upstream(custom_errors.ErrRateLimited, op, cause)}
	case "NOT_FOUND":
		return upstream(custom_errors.ErrNotFound, op, cause)
	}
	if errs[0].isTimeout() {
		return upstream(custom_errors.ErrTransient, op, cause)
	}
	// Schema, validation and query syntax errors fail the same way every time.
	return upstream(errUnclassified, op, cause)
}

// toInternalRepository translates a search node to our internal model.Repository.
func toInternalRepository(n repositoryNode) model.Repository {
	repo := model.Repository{
		GithubID:           n.DatabaseID,
		FullName:           n.NameWithOwner,
		Owner:              n.Owner.Login,
		Name:               n.Name,
		OwnerAvatarURL:     n.Owner.AvatarURL,
		Description:        nonEmpty(n.Description),
		URL:                n.URL,
		Homepage:           nonEmpty(n.HomepageURL),
		StarsCount:         n.StargazerCount,
		ForksCount:         n.ForkCount,
		WatchersCount:      n.Watchers.TotalCount,
		OpenIssuesCount:    n.Issues.TotalCount,
		OpenPullRequests:   n.PullRequests.TotalCount,
		SizeKB:             n.DiskUsage,
		RepoCreatedAt:      n.CreatedAt.UTC(),
		RepoUpdatedAt:      n.UpdatedAt.UTC(),
		PushedAt:           utcPtr(n.PushedAt),
		IsArchived:         n.IsArchived,
		IsDisabled:         n.IsDisabled,
		IsFork:             n.IsFork,
		IsTemplate:         n.IsTemplate,
		HasWiki:            n.HasWikiEnabled,
		HasDiscussions:     n.HasDiscussionsEnabled,
		HasIssues:          n.HasIssuesEnabled,
		HasProjects:        n.HasProjectsEnabled,
		SubscribersCount:   n.Watchers.TotalCount,
		NetworkCount:       n.ForkCount,
		LanguagesTotalSize: n.Languages.TotalSize,
		TotalReleases:      n.Releases.TotalCount,
	}
	if n.PrimaryLanguage != nil {
		repo.PrimaryLanguage = &n.PrimaryLanguage.Name
	}
	for _, edge := range n.Languages.Edges {
		lang := model.Language{Name: edge.Node.Name, Bytes: edge.Size}
		if edge.Node.Color != nil {
			lang.Color = *edge.Node.Color
		}
		repo.Languages = append(repo.Languages, lang)
	}
	for _, t := range n.RepositoryTopics.Nodes {
		repo.Topics = append(repo.Topics, t.Topic.Name)
	}
	if n.LicenseInfo != nil {
		repo.License = &model.License{Key: n.LicenseInfo.Key, Name: n.LicenseInfo.Name}
		if n.LicenseInfo.SpdxID != nil {
			repo.License.SPDXID = *n.LicenseInfo.SpdxID
		}
	}
	if ref := n.DefaultBranchRef; ref != nil {
		repo.DefaultBranch = ref.Name
		if ref.Target.History != nil {
			repo.CommitCount = ref.Target.History.TotalCount
		}
	}
	if len(n.Releases.Nodes) > 0 {
		r := n.Releases.Nodes[0]
		repo.LatestRelease = &model.Release{TagName: r.TagName, PublishedAt: utcPtr(r.PublishedAt)}
	}
	for _, issue := range n.ClosedIssues.Nodes {
		if issue.ClosedAt != nil {
			repo.ClosedIssues = append(repo.ClosedIssues, model.Interval{Start: issue.CreatedAt, End: *issue.ClosedAt})
		}
	}
	for _, pr := range n.MergedPullRequests.Nodes {
		if pr.MergedAt != nil {
			repo.MergedPulls = append(repo.MergedPulls, model.Interval{Start: pr.CreatedAt, End: *pr.MergedAt})
		}
	}
	return repo
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
