// Package scoring derives ranking metrics from a repository snapshot.
// Every function is pure; callers pass the reference time explicitly.
package scoring

import (
	"math"
	"time"

	"github-trending/internal/model"
)

const (
	issueCap          = 100
	staleAfterDays    = 365
	freshReleaseDays  = 90
	healthBase        = 50
	healthMin         = 0
	healthMax         = 100
	staleHealthMalus  = 20
	openIssuesBonus   = 5
	discussionsBonus  = 5
	freshReleaseBonus = 10
)

// ActivityScore ranks repositories by popularity and recent activity. Pushes
// within a week, a month or a quarter earn 200, 100 or 50 points; a repository
// untouched for more than a year has its whole score halved. Without a push
// date no recency adjustment is made.
func ActivityScore(repo model.Repository, daysSinceCommit *int) float64 {
	score := 100*math.Log10(float64(repo.StarsCount)+1) +
		50*math.Log10(float64(repo.ForksCount)+1) +
		0.5*float64(min(repo.OpenIssuesCount, issueCap))

	if daysSinceCommit != nil {
		switch days := *daysSinceCommit; {
		case days <= 7:
			score += 200
		case days <= 30:
			score += 100
		case days <= 90:
			score += 50
		case days > staleAfterDays:
			score /= 2
		}
	}
	return round2(score)
}

// HealthScore is a 0-100 maintenance indicator. Archived or disabled
// repositories always score 0.
func HealthScore(repo model.Repository, daysSinceCommit *int, now time.Time) int {
	if repo.IsArchived || repo.IsDisabled {
		return 0
	}

	score := healthBase
	if daysSinceCommit != nil {
		switch days := *daysSinceCommit; {
		case days <= 7:
			score += 30
		case days <= 30:
			score += 20
		case days <= 90:
			score += 10
		case days > staleAfterDays:
			score -= staleHealthMalus
		}
	}
	if rel := repo.LatestRelease; rel != nil && rel.PublishedAt != nil {
		if age := DaysSince(rel.PublishedAt, now); age != nil && *age <= freshReleaseDays {
			score += freshReleaseBonus
		}
	}
	if repo.HasIssues && repo.OpenIssuesCount > 0 {
		score += openIssuesBonus
	}
	if repo.HasDiscussions {
		score += discussionsBonus
	}
	return max(healthMin, min(healthMax, score))
}

// DaysSince returns the whole days elapsed between t and now, or nil when t is nil.
func DaysSince(t *time.Time, now time.Time) *int {
	if t == nil {
		return nil
	}
	days := int(now.Sub(*t).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

// LanguageShare is one language's share of a snapshot.
type LanguageShare struct {
	model.Language
	Percentage float64
}

// LanguageBreakdown computes each language's percentage of total bytes.
// When total is unknown the languages' own sum is used.
func LanguageBreakdown(langs []model.Language, total int64) []LanguageShare {
	if total <= 0 {
		for _, l := range langs {
			total += l.Bytes
		}
	}
	shares := make([]LanguageShare, 0, len(langs))
	for _, l := range langs {
		var pct float64
		if total > 0 {
			pct = round2(float64(l.Bytes) / float64(total) * 100)
		}
		shares = append(shares, LanguageShare{Language: l, Percentage: pct})
	}
	return shares
}

// AverageHours is the mean duration of intervals in hours, nil when there are none.
func AverageHours(intervals []model.Interval) *float64 {
	if len(intervals) == 0 {
		return nil
	}
	var total time.Duration
	for _, iv := range intervals {
		total += iv.End.Sub(iv.Start)
	}
	avg := round2(total.Hours() / float64(len(intervals)))
	return &avg
}

// Compute derives the sync-owned metrics for one snapshot. Growth deltas are
// left to the caller, which knows the previously stored counters.
func Compute(repo model.Repository, now time.Time) model.Stats {
	days := DaysSince(repo.PushedAt, now)
	stats := model.Stats{
		TotalCommits:        repo.CommitCount,
		ActivityScore:       ActivityScore(repo, days),
		HealthScore:         HealthScore(repo, days, now),
		AvgIssueCloseHours:  AverageHours(repo.ClosedIssues),
		AvgPRMergeHours:     AverageHours(repo.MergedPulls),
		DaysSinceLastCommit: days,
		TotalReleases:       repo.TotalReleases,
	}
	if rel := repo.LatestRelease; rel != nil {
		tag := rel.TagName
		stats.LatestReleaseTag = &tag
		stats.LatestReleaseDate = rel.PublishedAt
		stats.DaysSinceLastRelease = DaysSince(rel.PublishedAt, now)
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
