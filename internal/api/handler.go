// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/sync/errgroup"

	"github-trending/internal/database"
	"github-trending/internal/enricher"
	custom_errors "github-trending/internal/errors"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	defaultJobLimit  = 20
)

// JobStarter triggers background jobs.
type JobStarter interface {
	StartQuickSync(ctx context.Context) (uuid.UUID, error)
	StartComprehensiveSync(ctx context.Context) (uuid.UUID, error)
	StartContributorsRefresh(ctx context.Context, fullName string) (uuid.UUID, error)
	StartCommitActivityRefresh(ctx context.Context, fullName string) (uuid.UUID, error)
	StartAllEnrichment(ctx context.Context) (uuid.UUID, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db     database.Querier
	jobs   JobStarter
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db database.Querier, jobs JobStarter, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:     db,
		jobs:   jobs,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/sync/quick", h.trigger(func(r *http.Request) (uuid.UUID, error) {
				return h.jobs.StartQuickSync(r.Context())
			}))
			r.Post("/sync/comprehensive", h.trigger(func(r *http.Request) (uuid.UUID, error) {
				return h.jobs.StartComprehensiveSync(r.Context())
			}))
			r.Post("/contributors", h.trigger(func(r *http.Request) (uuid.UUID, error) {
				return h.jobs.StartContributorsRefresh(r.Context(), r.URL.Query().Get("repo"))
			}))
			r.Post("/commit-activity", h.trigger(func(r *http.Request) (uuid.UUID, error) {
				return h.jobs.StartCommitActivityRefresh(r.Context(), r.URL.Query().Get("repo"))
			}))
			r.Post("/enrich-all", h.trigger(func(r *http.Request) (uuid.UUID, error) {
				return h.jobs.StartAllEnrichment(r.Context())
			}))
			r.Get("/", h.listJobs)
			r.Get("/{id}", h.getJob)
		})
		r.Get("/repos", h.listRepositories)
		r.Get("/repos/{owner}/{name}", h.getRepository)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// trigger adapts a job start into a handler that answers 202 with the job id.
func (h *Handler) trigger(start func(r *http.Request) (uuid.UUID, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo := r.URL.Query().Get("repo"); repo != "" {
			if _, _, err := enricher.ParseFullName(repo); err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		id, err := start(r)
		if err != nil {
			if errors.Is(err, custom_errors.ErrJobAlreadyRunning) {
				respondWithError(w, http.StatusConflict, err.Error())
				return
			}
			h.logger.Error("Failed to start job", "path", r.URL.Path, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		respondWithJSON(w, http.StatusAccepted, map[string]string{"job_id": id.String()})
	}
}

// getJob returns one ledger entry.
// GET /v1/jobs/{id}
func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid job id")
		return
	}

	job, err := h.db.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error("Failed to get job", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, job)
}

// listJobs returns the most recent ledger entries.
// GET /v1/jobs?limit=N
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultJobLimit)
	if !ok {
		return
	}
	jobs, err := h.db.ListRecentJobs(r.Context(), int32(limit))
	if err != nil {
		h.logger.Error("Failed to list jobs", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, jobs)
}

// Cursor is the keyset position after the last repository of a page.
type Cursor struct {
	AfterStars int32 `json:"after_stars"`
	AfterID    int64 `json:"after_id"`
}

type repositoryPage struct {
	Repositories []database.RepositoryOverview `json:"repositories"`
	NextCursor   *Cursor                       `json:"next_cursor"`
}

// listRepositories serves the leaderboard ordered by stars, then id.
// GET /v1/repos?limit=N&after_stars=S&after_id=I
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultPageLimit)
	if !ok {
		return
	}

	arg := database.ListRepositoryOverviewParams{Limit: int32(limit)}
	q := r.URL.Query()
	afterStars, afterID := q.Get("after_stars"), q.Get("after_id")
	if (afterStars == "") != (afterID == "") {
		respondWithError(w, http.StatusBadRequest, "'after_stars' and 'after_id' must be given together.")
		return
	}
	if afterStars != "" {
		stars, err1 := strconv.ParseInt(afterStars, 10, 32)
		id, err2 := strconv.ParseInt(afterID, 10, 64)
		if err1 != nil || err2 != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid cursor.")
			return
		}
		arg.AfterStars = pgtype.Int4{Int32: int32(stars), Valid: true}
		arg.AfterID = pgtype.Int8{Int64: id, Valid: true}
	}

	repos, err := h.db.ListRepositoryOverview(r.Context(), arg)
	if err != nil {
		h.logger.Error("Failed to list repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	page := repositoryPage{Repositories: repos}
	if len(repos) == limit {
		last := repos[len(repos)-1]
		page.NextCursor = &Cursor{AfterStars: last.StargazersCount, AfterID: last.ID}
	}
	respondWithJSON(w, http.StatusOK, page)
}

type repositoryDetail struct {
	database.RepositoryOverview
	Languages      []database.RepositoryLanguage `json:"languages"`
	Contributors   []database.Contributor        `json:"contributors"`
	CommitActivity []database.CommitActivity     `json:"commit_activity"`
}

// getRepository returns one repository with its languages, contributors and
// weekly commit activity.
// GET /v1/repos/{owner}/{name}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	repo, err := h.db.GetRepositoryOverview(r.Context(), fullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		h.logger.Error("Failed to get repository", "repo", fullName, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	detail := repositoryDetail{RepositoryOverview: repo}
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		detail.Languages, err = h.db.ListRepositoryLanguages(gctx, repo.ID)
		return err
	})
	g.Go(func() error {
		var err error
		detail.Contributors, err = h.db.ListContributors(gctx, repo.ID)
		return err
	})
	g.Go(func() error {
		var err error
		detail.CommitActivity, err = h.db.ListCommitActivity(gctx, repo.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("Failed to load repository details", "repo", fullName, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return def, true
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > maxPageLimit {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
		return 0, false
	}
	return limit, true
}
