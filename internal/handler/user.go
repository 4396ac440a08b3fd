package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UserHandler serves the read-only progression views: leaderboard, profiles,
// earned achievements and the achievement catalog.
type UserHandler struct {
	reports Reports
	logger  *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(reports Reports, logger *slog.Logger) *UserHandler {
	return &UserHandler{reports: reports, logger: logger}
}

// HandleLeaderboard returns users ordered by XP.
//
// HTTP: GET /api/leaderboard?limit=10
func (h *UserHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	board, err := h.reports.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleProfile returns one user's public profile.
//
// HTTP: GET /api/users/{id}/profile
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.reports.UserProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleAchievements returns a user's most recent achievements. An unknown
// user simply has none.
//
// HTTP: GET /api/users/{id}/achievements
func (h *UserHandler) HandleAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := h.reports.UserAchievements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, achievements)
}

// HandleCatalog lists every achievement that can be earned.
//
// HTTP: GET /api/achievements
func (h *UserHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reports.Catalog())
}
