// Package repository declares the storage contracts the services depend on.
//
// Services only ever see these interfaces; internal/repository/sqlite is the
// implementation wired in by the server, and tests are free to swap in fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/pollquest/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository is the identity store.
type UserRepository interface {
	// CreateUser inserts a new user. Returns apperror.ErrConflict when the
	// email is already registered.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	TouchLastActivity(ctx context.Context, id string, at time.Time) error
	// AddProgress atomically adds p to the user's counters and returns the
	// row as it is after the update.
	AddProgress(ctx context.Context, id string, p model.Progress) (*model.User, error)
	// ListUsersByXP returns users ordered by xp descending, ties in
	// registration order.
	ListUsersByXP(ctx context.Context, limit int) ([]model.User, error)
}

// PollRepository is the poll store.
type PollRepository interface {
	CreatePoll(ctx context.Context, poll *model.Poll) error
	GetPollByID(ctx context.Context, id string) (*model.Poll, error)
	// ListActivePolls returns active polls, newest first.
	ListActivePolls(ctx context.Context, opts ListOptions) ([]model.Poll, error)
	// RecordVote adds userID to optionID's voter set and bumps both tallies.
	// Returns ErrNotFound for an unknown poll or option and ErrConflict when
	// userID already voted on the poll.
	RecordVote(ctx context.Context, pollID, optionID, userID string) (*model.VoteTally, error)
}

// AchievementRepository stores granted achievements.
type AchievementRepository interface {
	// InsertAchievement writes a if no achievement with the same
	// (UserID, Title) exists. inserted is false when one already did.
	InsertAchievement(ctx context.Context, a *model.Achievement) (inserted bool, err error)
	ListAchievementsByUser(ctx context.Context, userID string, limit int) ([]model.Achievement, error)
}

// Store bundles all repositories behind one transactional boundary.
type Store interface {
	UserRepository
	PollRepository
	AchievementRepository

	// WithinTx runs fn against a Store bound to a single transaction. If fn
	// returns an error (or ctx is cancelled) nothing fn wrote is kept.
	// Nested calls join the outer transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
