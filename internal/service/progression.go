// Package service holds the progression engine and the read-side services.
//
// ProgressionEngine owns every write that moves a user's XP, counters or
// achievements:
//
//	PollHandler (HTTP) → ProgressionEngine → repository.Store (one tx)
//	                                                    ↘ achievement policy + catalog
//
// HOW A VOTE STAYS CORRECT UNDER CONCURRENCY:
//  1. The engine takes a per-poll lock, so two votes on the same poll never
//     interleave inside this process.
//  2. Everything the vote changes (tallies, voter row, voter XP, milestone
//     grants, creator bonus) is written in ONE store transaction. If any step
//     fails the whole vote is rolled back.
//  3. The store itself refuses a second (poll, user) vote row and a second
//     (user, title) achievement row, so the invariants hold even if a second
//     process shares the database.
//
// Milestones are compared with exact equality against the counters the store
// returns after its own increment, which is why each fires exactly once.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rs/xid"
	"github.com/samber/lo"

	"github.com/sakif/pollquest/internal/achievement"
	"github.com/sakif/pollquest/internal/apperror"
	"github.com/sakif/pollquest/internal/metrics"
	"github.com/sakif/pollquest/internal/model"
	"github.com/sakif/pollquest/internal/repository"
)

// Poll input limits.
const (
	MaxTitleLength       = 200
	MaxOptionLength      = 200
	MaxOptionsPerPoll    = 20
	MaxDescriptionLength = 2000
)

// LeaderboardInvalidator is told after every committed change to user XP.
type LeaderboardInvalidator interface {
	InvalidateLeaderboard()
}

// ProgressionEngine applies votes, poll creation and achievement grants.
type ProgressionEngine struct {
	store       repository.Store
	polls       *keyLock
	metrics     *metrics.Metrics
	logger      *slog.Logger
	leaderboard LeaderboardInvalidator
}

// NewProgressionEngine wires the engine. leaderboard may be nil.
func NewProgressionEngine(
	store repository.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
	leaderboard LeaderboardInvalidator,
) *ProgressionEngine {
	return &ProgressionEngine{
		store:       store,
		polls:       newKeyLock(),
		metrics:     m,
		logger:      logger,
		leaderboard: leaderboard,
	}
}

// VoteResult is returned by CastVote.
type VoteResult struct {
	TotalVotes int `json:"total_votes"`
}

// PollInput is what a creator submits.
type PollInput struct {
	Title       string
	Description string
	Options     []string
	Tags        []string
}

// effects collects what a transaction did so it can be logged and counted
// once the transaction has committed. Nothing is reported for a rollback.
type effects struct {
	xp     map[string]int // source → amount
	grants []grantRecord
}

type grantRecord struct {
	userID string
	kind   achievement.Kind
	bonus  int
}

func newEffects() *effects {
	return &effects{xp: make(map[string]int)}
}

func (e *effects) addXP(source string, amount int) {
	if amount > 0 {
		e.xp[source] += amount
	}
}

// CastVote records userID's vote for optionID on pollID.
//
// Errors:
//   - apperror.ErrNotFound: unknown poll, option or user
//   - apperror.ErrConflict: userID already voted on this poll
func (e *ProgressionEngine) CastVote(ctx context.Context, pollID, optionID, userID string) (*VoteResult, error) {
	unlock := e.polls.Lock(pollID)
	defer unlock()

	fx := newEffects()
	var result VoteResult

	err := e.store.WithinTx(ctx, func(tx repository.Store) error {
		tally, err := tx.RecordVote(ctx, pollID, optionID, userID)
		if err != nil {
			return err
		}
		result.TotalVotes = tally.TotalVotes

		voter, err := tx.AddProgress(ctx, userID, model.Progress{XP: achievement.VoteXP, VotesCast: 1})
		if err != nil {
			return err
		}
		fx.addXP(metrics.SourceVote, achievement.VoteXP)

		for _, kind := range achievement.VoterKindsForVoteCount(voter.TotalVotesCast) {
			if _, err := e.grant(ctx, tx, userID, kind, fx); err != nil {
				return err
			}
		}

		for _, kind := range achievement.CreatorKindsForPollVotes(tally.TotalVotes) {
			if _, err := e.grant(ctx, tx, tally.CreatorID, kind, fx); err != nil {
				return err
			}
		}

		if tally.TotalVotes == achievement.ViralPollVotes {
			bonus := achievement.PopularityBonus(tally.TotalVotes)
			if _, err := tx.AddProgress(ctx, tally.CreatorID, model.Progress{XP: bonus}); err != nil {
				return err
			}
			fx.addXP(metrics.SourcePopularity, bonus)
		}
		return nil
	})
	if err != nil {
		e.metrics.VotesRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, fmt.Errorf("service/progression: casting vote on poll %s: %w", pollID, err)
	}

	e.metrics.VotesCast.Inc()
	e.committed(fx)
	e.logger.Info("vote recorded",
		slog.String("pollID", pollID),
		slog.String("optionID", optionID),
		slog.String("userID", userID),
		slog.Int("totalVotes", result.TotalVotes),
	)
	return &result, nil
}

// CreatePoll validates input, stores a new poll owned by creatorID and awards
// the creator.
//
// Errors:
//   - apperror.ErrValidation: bad title, options or description
//   - apperror.ErrNotFound: unknown creator
func (e *ProgressionEngine) CreatePoll(ctx context.Context, in PollInput, creatorID string) (*model.Poll, error) {
	in, err := normalizePollInput(in)
	if err != nil {
		return nil, err
	}

	fx := newEffects()
	var poll *model.Poll

	err = e.store.WithinTx(ctx, func(tx repository.Store) error {
		creator, err := tx.GetUserByID(ctx, creatorID)
		if err != nil {
			return err
		}

		poll = &model.Poll{
			Title:       in.Title,
			Description: in.Description,
			Options: lo.Map(in.Options, func(text string, _ int) model.PollOption {
				return model.PollOption{ID: xid.New().String(), Text: text, VoterIDs: []string{}}
			}),
			CreatorID:       creator.ID,
			CreatorUsername: creator.Username,
			Tags:            in.Tags,
			IsActive:        true,
		}
		if err := tx.CreatePoll(ctx, poll); err != nil {
			return err
		}

		updated, err := tx.AddProgress(ctx, creatorID, model.Progress{XP: achievement.PollCreationXP, PollsCreated: 1})
		if err != nil {
			return err
		}
		fx.addXP(metrics.SourcePoll, achievement.PollCreationXP)

		for _, kind := range achievement.CreatorKindsForPollCount(updated.TotalPollsCreated) {
			if _, err := e.grant(ctx, tx, creatorID, kind, fx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/progression: creating poll for user %s: %w", creatorID, err)
	}

	e.metrics.PollsCreated.Inc()
	e.committed(fx)
	e.logger.Info("poll created",
		slog.String("pollID", poll.ID),
		slog.String("creatorID", creatorID),
		slog.Int("options", len(poll.Options)),
	)
	return poll, nil
}

// GrantAchievement gives kind to userID unless they already hold it.
// An unknown kind is ignored. granted reports whether a new record was written.
func (e *ProgressionEngine) GrantAchievement(ctx context.Context, userID string, kind achievement.Kind) (bool, error) {
	fx := newEffects()
	var granted bool

	err := e.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		granted, err = e.grant(ctx, tx, userID, kind, fx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("service/progression: granting %s to user %s: %w", kind, userID, err)
	}

	e.committed(fx)
	return granted, nil
}

// grant is the insert-if-absent step shared by every caller. It must run
// inside tx; the bonus XP is only added when the insert actually happened.
func (e *ProgressionEngine) grant(ctx context.Context, tx repository.Store, userID string, kind achievement.Kind, fx *effects) (bool, error) {
	def, ok := achievement.Lookup(kind)
	if !ok {
		return false, nil
	}

	inserted, err := tx.InsertAchievement(ctx, def.NewRecord(userID))
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if _, err := tx.AddProgress(ctx, userID, model.Progress{XP: def.XPBonus}); err != nil {
		return false, err
	}
	fx.addXP(metrics.SourceAchievement, def.XPBonus)
	fx.grants = append(fx.grants, grantRecord{userID: userID, kind: kind, bonus: def.XPBonus})
	return true, nil
}

// committed publishes fx after a successful commit.
func (e *ProgressionEngine) committed(fx *effects) {
	for source, amount := range fx.xp {
		e.metrics.XPAwarded.WithLabelValues(source).Add(float64(amount))
	}
	for _, g := range fx.grants {
		e.metrics.AchievementsGranted.WithLabelValues(string(g.kind)).Inc()
		e.logger.Info("achievement granted",
			slog.String("userID", g.userID),
			slog.String("kind", string(g.kind)),
			slog.Int("xpBonus", g.bonus),
		)
	}
	if len(fx.xp) > 0 && e.leaderboard != nil {
		e.leaderboard.InvalidateLeaderboard()
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return "already_voted"
	default:
		return "error"
	}
}

// normalizePollInput trims every field, drops duplicate and empty tags and
// enforces the input limits.
func normalizePollInput(in PollInput) (PollInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	switch {
	case in.Title == "":
		return in, apperror.ValidationFailed("title", "title is required")
	case utf8.RuneCountInString(in.Title) > MaxTitleLength:
		return in, apperror.ValidationFailed("title", fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	case utf8.RuneCountInString(in.Description) > MaxDescriptionLength:
		return in, apperror.ValidationFailed("description", fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
	case len(in.Options) == 0:
		return in, apperror.ValidationFailed("options", "at least one option is required")
	case len(in.Options) > MaxOptionsPerPoll:
		return in, apperror.ValidationFailed("options", fmt.Sprintf("a poll can have at most %d options", MaxOptionsPerPoll))
	}

	in.Options = lo.Map(in.Options, func(text string, _ int) string { return strings.TrimSpace(text) })
	for i, text := range in.Options {
		if text == "" {
			return in, apperror.ValidationFailed("options", fmt.Sprintf("option %d is blank", i+1))
		}
		if utf8.RuneCountInString(text) > MaxOptionLength {
			return in, apperror.ValidationFailed("options", fmt.Sprintf("option %d must be at most %d characters", i+1, MaxOptionLength))
		}
	}

	tags := lo.Map(in.Tags, func(tag string, _ int) string { return strings.TrimSpace(tag) })
	in.Tags = lo.Uniq(lo.Compact(tags))
	return in, nil
}
