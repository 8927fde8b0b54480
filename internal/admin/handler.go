// internal/admin/handler.go
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"compat-optimizer/internal/batch"
	commonerrors "compat-optimizer/internal/common/errors"
	"compat-optimizer/internal/common/logger"
	"compat-optimizer/internal/loader"
	"compat-optimizer/internal/models"
	"compat-optimizer/internal/optimizer"

	"github.com/go-chi/chi/v5"
)

// Coordinator is the slice of the optimization coordinator the admin surface
// needs.
type Coordinator interface {
	Optimize(ctx context.Context, req *models.OptimizationRequest) *models.OptimizationResult
	SetProfile(name string) error
	GetProfile() optimizer.Profile
	Metrics() models.OptimizationMetrics
	HealthScore() int
	TuningSuggestions() []string
	WarmCache(ctx context.Context, pairs []loader.Pair) int
}

// Jobs exposes background job inspection.
type Jobs interface {
	Status(jobID string) (*models.Job, error)
	Result(jobID string) (*batch.Result, error)
	Cancel(jobID string) error
}

// Scores exposes the quick and progressive loading paths for list surfaces.
type Scores interface {
	LoadQuickScore(ctx context.Context, participantA, participantB string, opts loader.Options) *models.QuickScore
	LoadProgressiveScores(ctx context.Context, pairs []loader.Pair, opts loader.ProgressiveOptions) *loader.ProgressiveResult
}

// Handler serves the optimize endpoint plus operational controls.
type Handler struct {
	coordinator Coordinator
	jobs        Jobs
	scores      Scores
	logger      logger.Logger
}

func NewHandler(coordinator Coordinator, jobs Jobs, scores Scores, log logger.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		jobs:        jobs,
		scores:      scores,
		logger:      log.WithFields(map[string]interface{}{"component": "admin-handler"}),
	}
}

// Routes mounts the request surface and the admin surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/optimize", h.handleOptimize)
	r.Get("/scores/quick", h.handleQuickScore)
	r.Post("/scores/progressive", h.handleProgressiveScores)
	r.Get("/jobs/{jobID}", h.handleJobStatus)
	r.Get("/jobs/{jobID}/result", h.handleJobResult)
	r.Delete("/jobs/{jobID}", h.handleJobCancel)

	r.Route("/admin", func(r chi.Router) {
		r.Put("/profile/{name}", h.handleSetProfile)
		r.Get("/profile", h.handleGetProfile)
		r.Get("/metrics", h.handleMetrics)
		r.Get("/health", h.handleHealth)
		r.Get("/suggestions", h.handleSuggestions)
		r.Post("/warm", h.handleWarm)
	})

	return r
}

func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req models.OptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, commonerrors.NewInvalidRequestError("malformed request body: "+err.Error()))
		return
	}

	result := h.coordinator.Optimize(r.Context(), &req)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (h *Handler) handleQuickScore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	participantA := q.Get("participantA")
	participantB := q.Get("participantB")
	if participantA == "" || participantB == "" {
		writeError(w, commonerrors.NewMissingParticipantsError())
		return
	}

	quick := h.scores.LoadQuickScore(r.Context(), participantA, participantB, loader.Options{
		GroupContext: q.Get("groupContext"),
		AlgorithmID:  q.Get("algorithmId"),
	})
	writeJSON(w, http.StatusOK, quick)
}

// handleProgressiveScores loads the viewport window in full detail. When the
// caller does not say otherwise, prefetching follows the active profile.
func (h *Handler) handleProgressiveScores(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pairs        []loader.Pair `json:"pairs"`
		ViewportSize int           `json:"viewportSize"`
		Prefetch     *bool         `json:"prefetch"`
		GroupContext string        `json:"groupContext"`
		AlgorithmID  string        `json:"algorithmId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, commonerrors.NewInvalidRequestError("malformed request body: "+err.Error()))
		return
	}
	if len(body.Pairs) == 0 {
		writeError(w, commonerrors.NewMissingParticipantsError())
		return
	}

	prefetch := h.coordinator.GetProfile().AggressivePrefetch
	if body.Prefetch != nil {
		prefetch = *body.Prefetch
	}

	result := h.scores.LoadProgressiveScores(r.Context(), body.Pairs, loader.ProgressiveOptions{
		Options: loader.Options{
			GroupContext: body.GroupContext,
			AlgorithmID:  body.AlgorithmID,
		},
		ViewportSize: body.ViewportSize,
		Prefetch:     prefetch,
	})
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleJobResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.jobs.Result(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Cancel(chi.URLParam(r, "jobID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *Handler) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.coordinator.SetProfile(name); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("profile switched via admin", map[string]interface{}{"profile": name})
	writeJSON(w, http.StatusOK, h.coordinator.GetProfile())
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.GetProfile())
}

func (h *Handler) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.Metrics())
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	score := h.coordinator.HealthScore()
	status := "healthy"
	switch {
	case score < 50:
		status = "unhealthy"
	case score < 80:
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"score":  score,
		"status": status,
	})
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": h.coordinator.TuningSuggestions(),
	})
}

func (h *Handler) handleWarm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pairs []loader.Pair `json:"pairs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, commonerrors.NewInvalidRequestError("malformed request body: "+err.Error()))
		return
	}

	scheduled := h.coordinator.WarmCache(r.Context(), body.Pairs)
	writeJSON(w, http.StatusAccepted, map[string]int{"scheduled": scheduled})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var stdErr *commonerrors.StandardError
	if !errors.As(err, &stdErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch stdErr.Code {
	case commonerrors.ErrCodeInvalidRequest, commonerrors.ErrCodeMissingParticipants:
		status = http.StatusBadRequest
	case commonerrors.ErrCodeJobNotFound, commonerrors.ErrCodeAssetNotFound, commonerrors.ErrCodeProfileNotFound:
		status = http.StatusNotFound
	case commonerrors.ErrCodeUnknownProfile:
		status = http.StatusBadRequest
	case commonerrors.ErrCodeQueueFull:
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, stdErr)
}
