package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/critiq-dev/reviewstats/internal/aggregator"
	"github.com/critiq-dev/reviewstats/internal/stats"
)

// AdminHandler exposes manual aggregation triggers. The routes sit
// behind a bearer token; there is no user model beyond that.
type AdminHandler struct {
	queue aggregator.Enqueuer
	token string
}

func NewAdminHandler(queue aggregator.Enqueuer, token string) *AdminHandler {
	return &AdminHandler{queue: queue, token: token}
}

// Authorize rejects requests without the configured admin token. With
// no token configured the admin surface is disabled outright.
func (h *AdminHandler) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" || r.Header.Get("Authorization") != "Bearer "+h.token {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type updateStatsRequest struct {
	Tasks []string `json:"tasks"`
}

// UpdateStats handles POST /api/admin/update-stats: validates the
// requested task list, expands months into days and enqueues the chain.
func (h *AdminHandler) UpdateStats(w http.ResponseWriter, r *http.Request) {
	var req updateStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	today := time.Now().UTC()
	tasks, err := aggregator.ExpandTasks(req.Tasks, today)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := json.Marshal(aggregator.TaskPayload{
		Tasks: tasks,
		Date:  stats.DayKey(today),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build task payload")
		return
	}
	if err := h.queue.Enqueue(r.Context(), aggregator.QueueUpdateStats, payload, 0); err != nil {
		slog.Error("Failed to enqueue admin task chain", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to enqueue tasks")
		return
	}
	slog.Info("Admin task chain enqueued", "tasks", tasks)
	respondJSON(w, http.StatusAccepted, map[string]any{"tasks": tasks})
}

type refreshScoresRequest struct {
	Destroy bool `json:"destroy"`
}

// RefreshScores handles POST /api/admin/refresh-scores: starts a score
// refresh (or destroy) run over all stored records.
func (h *AdminHandler) RefreshScores(w http.ResponseWriter, r *http.Request) {
	var req refreshScoresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	payload, err := json.Marshal(aggregator.TaskPayload{
		Kind:    aggregator.KindDay,
		Destroy: req.Destroy,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build task payload")
		return
	}
	if err := h.queue.Enqueue(r.Context(), aggregator.QueueRefreshScores, payload, 0); err != nil {
		slog.Error("Failed to enqueue score refresh", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to enqueue refresh")
		return
	}
	slog.Info("Score refresh enqueued", "destroy", req.Destroy)
	respondJSON(w, http.StatusAccepted, map[string]any{"destroy": req.Destroy})
}
