package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pollquest/internal/achievement"
	"github.com/sakif/pollquest/internal/apperror"
	"github.com/sakif/pollquest/internal/model"
	"github.com/sakif/pollquest/internal/service"
)

// Engine is the write side: everything that awards XP goes through it.
type Engine interface {
	CreatePoll(ctx context.Context, in service.PollInput, creatorID string) (*model.Poll, error)
	CastVote(ctx context.Context, pollID, optionID, userID string) (*service.VoteResult, error)
}

// Reports is the read side.
type Reports interface {
	Leaderboard(ctx context.Context, limit int) ([]model.UserProfile, error)
	UserProfile(ctx context.Context, userID string) (*model.UserProfile, error)
	UserAchievements(ctx context.Context, userID string) ([]model.Achievement, error)
	ListPolls(ctx context.Context, limit, skip int) ([]model.Poll, error)
	GetPoll(ctx context.Context, pollID string) (*model.Poll, error)
	Catalog() []achievement.Definition
}

// PollHandler serves poll creation, browsing and voting.
type PollHandler struct {
	engine  Engine
	reports Reports
	logger  *slog.Logger
}

// NewPollHandler creates a PollHandler.
func NewPollHandler(engine Engine, reports Reports, logger *slog.Logger) *PollHandler {
	return &PollHandler{engine: engine, reports: reports, logger: logger}
}

// Per-field limits mirror the service's; the service re-checks after trimming.
type createPollRequest struct {
	Title       string   `json:"title"       validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Options     []string `json:"options"     validate:"required,min=1,max=20,dive,required,max=200"`
	Tags        []string `json:"tags"        validate:"omitempty,max=20,dive,max=50"`
}

type voteRequest struct {
	PollID   string `json:"poll_id"   validate:"required"`
	OptionID string `json:"option_id" validate:"required"`
	UserID   string `json:"user_id"   validate:"required"`
}

// VoteResponse is the body of a successful vote.
type VoteResponse struct {
	Message    string `json:"message"`
	TotalVotes int    `json:"total_votes"`
}

// HandleCreate creates a poll owned by the user named in the query string.
//
// HTTP: POST /api/polls?user_id=<id>
// REQUEST BODY: {"title": "...", "description": "...", "options": ["a", "b"], "tags": ["go"]}
func (h *PollHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	creatorID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if creatorID == "" {
		writeError(w, h.logger, apperror.ValidationFailed("user_id", "user_id is required"))
		return
	}

	var req createPollRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	poll, err := h.engine.CreatePoll(r.Context(), service.PollInput{
		Title:       req.Title,
		Description: req.Description,
		Options:     req.Options,
		Tags:        req.Tags,
	}, creatorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, poll)
}

// HandleList returns active polls, newest first.
//
// HTTP: GET /api/polls?limit=20&skip=0
func (h *PollHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	skip, err := queryInt(r, "skip")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	polls, err := h.reports.ListPolls(r.Context(), limit, skip)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, polls)
}

// HandleGetByID returns one poll with its options and voters.
//
// HTTP: GET /api/polls/{id}
func (h *PollHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	poll, err := h.reports.GetPoll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, poll)
}

// HandleVote records a vote.
//
// HTTP: POST /api/vote
// REQUEST BODY: {"poll_id": "...", "option_id": "...", "user_id": "..."}
//
// A second vote by the same user on the same poll is a 409.
func (h *PollHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.engine.CastVote(r.Context(), req.PollID, req.OptionID, req.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, VoteResponse{
		Message:    "Vote recorded successfully",
		TotalVotes: res.TotalVotes,
	})
}
