// internal/model/models.go
package model

import (
	"time"
)

// ContributorsDataType tells whether a stored contributor set is authoritative.
type ContributorsDataType string

const (
	ContributorsAllTime ContributorsDataType = "all_time"
	ContributorsRecent  ContributorsDataType = "recent"
)

// Repository is a snapshot of an upstream repository at fetch time.
type Repository struct {
	GithubID         int64
	FullName         string
	Owner            string
	Name             string
	OwnerAvatarURL   string
	Description      *string
	URL              string
	Homepage         *string
	StarsCount       int
	ForksCount       int
	WatchersCount    int
	OpenIssuesCount  int
	OpenPullRequests int
	SizeKB           int
	PrimaryLanguage  *string
	Topics           []string
	License          *License
	RepoCreatedAt    time.Time
	RepoUpdatedAt    time.Time
	PushedAt         *time.Time
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
	SubscribersCount int
	NetworkCount     int

	// Languages and LanguagesTotalSize come from the same snapshot so that
	// percentages stay consistent within one fetch.
	Languages          []Language
	LanguagesTotalSize int64

	CommitCount   int
	LatestRelease *Release
	TotalReleases int

	// Recently closed issues and merged pull requests, used for time-to-close averages.
	ClosedIssues []Interval
	MergedPulls  []Interval
}

// License is the detected license of a repository.
type License struct {
	Key    string
	Name   string
	SPDXID string
}

// Language is a per-language byte count within one repository snapshot.
type Language struct {
	Name  string
	Color string
	Bytes int64
}

// Release is the latest published release.
type Release struct {
	TagName     string
	PublishedAt *time.Time
}

// Interval is an opened/closed pair.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contributor is one entry of a repository's contributor set.
type Contributor struct {
	GithubUserID  int64
	Login         string
	AvatarURL     string
	ProfileURL    string
	Contributions int
	Type          string
}

// CommitActivityWeek is the commit total of one week.
type CommitActivityWeek struct {
	Week  time.Time
	Total int
}

// Stats holds the metrics derived by the sync for one repository.
type Stats struct {
	TotalCommits         int
	StarsGrowth          *int
	ForksGrowth          *int
	ActivityScore        float64
	HealthScore          int
	AvgIssueCloseHours   *float64
	AvgPRMergeHours      *float64
	DaysSinceLastCommit  *int
	DaysSinceLastRelease *int
	LatestReleaseTag     *string
	LatestReleaseDate    *time.Time
	TotalReleases        int
}
