package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/sakif/pollquest/internal/achievement"
	"github.com/sakif/pollquest/internal/apperror"
	"github.com/sakif/pollquest/internal/cache"
	"github.com/sakif/pollquest/internal/metrics"
	"github.com/sakif/pollquest/internal/model"
	"github.com/sakif/pollquest/internal/repository"
)

// List limits for the read endpoints.
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	DefaultListLimit        = 20
	MaxListLimit            = 100
	MaxAchievementsListed   = 100
)

// ReportingService answers read-only queries. It never writes.
//
// Leaderboard results are cached when a cache is supplied. Cache keys carry a
// generation number that InvalidateLeaderboard bumps, so a result computed
// before a write commits can never be served after it.
type ReportingService struct {
	store      repository.Store
	board      *cache.Local[[]model.UserProfile]
	generation atomic.Uint64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewReportingService creates a ReportingService. board may be nil to disable
// leaderboard caching.
func NewReportingService(
	store repository.Store,
	board *cache.Local[[]model.UserProfile],
	m *metrics.Metrics,
	logger *slog.Logger,
) *ReportingService {
	return &ReportingService{
		store:   store,
		board:   board,
		metrics: m,
		logger:  logger,
	}
}

// Leaderboard returns up to limit users by descending XP. limit ≤ 0 means the
// default. A limit above MaxLeaderboardLimit is a validation error, so a short
// page always means there are no more users.
func (s *ReportingService) Leaderboard(ctx context.Context, limit int) ([]model.UserProfile, error) {
	limit, err := resolveLimit(limit, DefaultLeaderboardLimit, MaxLeaderboardLimit)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("leaderboard:%d:%d", s.generation.Load(), limit)

	if s.board != nil {
		if cached, ok := s.board.Get(ctx, key); ok {
			s.metrics.LeaderboardCache.WithLabelValues("hit").Inc()
			return cached, nil
		}
		s.metrics.LeaderboardCache.WithLabelValues("miss").Inc()
	}

	users, err := s.store.ListUsersByXP(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/reporting: loading leaderboard: %w", err)
	}
	profiles := lo.Map(users, func(u model.User, _ int) model.UserProfile { return u.Profile() })

	if s.board != nil {
		if err := s.board.Set(ctx, key, profiles); err != nil {
			s.logger.Warn("leaderboard cache write failed", slog.String("error", err.Error()))
		}
	}
	return profiles, nil
}

// InvalidateLeaderboard makes every cached leaderboard stale.
func (s *ReportingService) InvalidateLeaderboard() {
	s.generation.Add(1)
	if s.board != nil {
		if err := s.board.Clear(context.Background()); err != nil {
			s.logger.Warn("leaderboard cache clear failed", slog.String("error", err.Error()))
		}
	}
}

// UserProfile returns the public profile of userID.
func (s *ReportingService) UserProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/reporting: loading profile %s: %w", userID, err)
	}
	profile := user.Profile()
	return &profile, nil
}

// UserAchievements returns userID's achievements, most recent first. An
// unknown user simply has none.
func (s *ReportingService) UserAchievements(ctx context.Context, userID string) ([]model.Achievement, error) {
	list, err := s.store.ListAchievementsByUser(ctx, userID, MaxAchievementsListed)
	if err != nil {
		return nil, fmt.Errorf("service/reporting: loading achievements of %s: %w", userID, err)
	}
	return list, nil
}

// ListPolls returns active polls, newest first. Limits follow the same rules
// as Leaderboard.
func (s *ReportingService) ListPolls(ctx context.Context, limit, skip int) ([]model.Poll, error) {
	limit, err := resolveLimit(limit, DefaultListLimit, MaxListLimit)
	if err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	polls, err := s.store.ListActivePolls(ctx, repository.ListOptions{
		Limit:  limit,
		Offset: skip,
	})
	if err != nil {
		return nil, fmt.Errorf("service/reporting: listing polls: %w", err)
	}
	return polls, nil
}

// GetPoll returns a single poll. Returns apperror.ErrNotFound if absent.
func (s *ReportingService) GetPoll(ctx context.Context, pollID string) (*model.Poll, error) {
	poll, err := s.store.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("service/reporting: loading poll %s: %w", pollID, err)
	}
	return poll, nil
}

// Catalog returns every achievement a user can earn.
func (s *ReportingService) Catalog() []achievement.Definition {
	return achievement.All()
}

// resolveLimit maps n ≤ 0 to def and rejects anything above ceiling.
func resolveLimit(n, def, ceiling int) (int, error) {
	switch {
	case n <= 0:
		return def, nil
	case n > ceiling:
		return 0, apperror.ValidationFailed("limit", fmt.Sprintf("limit must be at most %d", ceiling))
	}
	return n, nil
}
