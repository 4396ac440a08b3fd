package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sakif/pollquest/internal/apperror"
	"github.com/sakif/pollquest/internal/cache"
	"github.com/sakif/pollquest/internal/model"
)

// newReportingFixture wires an engine and a caching ReportingService on the
// same store, with the reporting service registered as the engine's
// leaderboard invalidator, the way the server wires them.
func newReportingFixture(t *testing.T) (*engineFixture, *ReportingService) {
	t.Helper()
	f := newEngineFixture(t)

	board, err := cache.NewLocal[[]model.UserProfile](64, time.Minute)
	if err != nil {
		t.Fatalf("cache.NewLocal() error = %v", err)
	}
	t.Cleanup(board.Close)

	rs := NewReportingService(f.db, board, f.metrics, discardLogger())
	f.engine = NewProgressionEngine(f.db, f.metrics, discardLogger(), rs)
	return f, rs
}

func TestLeaderboard_SortedAndTruncated(t *testing.T) {
	f, rs := newReportingFixture(t)
	ctx := context.Background()

	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	f.poll(t, alice) // alice 30
	p := f.poll(t, bob)
	if _, err := f.engine.CastVote(ctx, p.ID, p.Options[0].ID, carol.ID); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}
	// bob 30, carol 5; alice registered first so she leads the tie.

	board, err := rs.Leaderboard(ctx, 0)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(board) != len(want) {
		t.Fatalf("len = %d, want %d", len(board), len(want))
	}
	for i, name := range want {
		if board[i].Username != name {
			t.Errorf("board[%d] = %q, want %q", i, board[i].Username, name)
		}
	}
	for i := 1; i < len(board); i++ {
		if board[i-1].XP < board[i].XP {
			t.Errorf("not sorted by xp: %d before %d", board[i-1].XP, board[i].XP)
		}
	}

	top, err := rs.Leaderboard(ctx, 1)
	if err != nil {
		t.Fatalf("Leaderboard(1) error = %v", err)
	}
	if len(top) != 1 || top[0].Username != "alice" {
		t.Errorf("Leaderboard(1) = %+v", top)
	}
}

func TestLeaderboard_InvalidatedByEngine(t *testing.T) {
	f, rs := newReportingFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	first, err := rs.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if first[0].XP != 0 {
		t.Fatalf("fresh users should have 0 xp, got %+v", first)
	}

	p := f.poll(t, alice)
	if _, err := f.engine.CastVote(ctx, p.ID, p.Options[0].ID, bob.ID); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	after, err := rs.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if after[0].Username != "alice" || after[0].XP != 30 || after[1].XP != 5 {
		t.Errorf("stale leaderboard after writes: %+v", after)
	}
}

func TestLeaderboard_CacheHit(t *testing.T) {
	f, rs := newReportingFixture(t)
	ctx := context.Background()
	f.user(t, "alice")

	if _, err := rs.Leaderboard(ctx, 10); err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if _, err := rs.Leaderboard(ctx, 10); err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}

	hits := testutil.ToFloat64(f.metrics.LeaderboardCache.WithLabelValues("hit"))
	misses := testutil.ToFloat64(f.metrics.LeaderboardCache.WithLabelValues("miss"))
	if hits+misses != 2 || misses < 1 {
		t.Errorf("hits=%v misses=%v", hits, misses)
	}
}

func TestLeaderboard_NoCache(t *testing.T) {
	f := newEngineFixture(t)
	rs := NewReportingService(f.db, nil, f.metrics, discardLogger())
	f.user(t, "alice")

	board, err := rs.Leaderboard(context.Background(), 500)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(board) != 1 {
		t.Errorf("len = %d, want 1", len(board))
	}
	rs.InvalidateLeaderboard() // must not panic without a cache
}

func TestUserProfileAndAchievements(t *testing.T) {
	f, rs := newReportingFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	f.poll(t, alice)

	profile, err := rs.UserProfile(ctx, alice.ID)
	if err != nil {
		t.Fatalf("UserProfile() error = %v", err)
	}
	if profile.XP != 30 || profile.TotalPollsCreated != 1 {
		t.Errorf("profile = %+v", profile)
	}

	if _, err := rs.UserProfile(ctx, "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UserProfile(ghost) error = %v, want ErrNotFound", err)
	}

	list, err := rs.UserAchievements(ctx, alice.ID)
	if err != nil {
		t.Fatalf("UserAchievements() error = %v", err)
	}
	if len(list) != 1 || list[0].Title != "First Poll Creator" || list[0].XPBonus != 10 {
		t.Errorf("achievements = %+v", list)
	}
}

func TestListPollsAndGetPoll(t *testing.T) {
	f, rs := newReportingFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	first := f.poll(t, alice)
	second := f.poll(t, alice)

	polls, err := rs.ListPolls(ctx, 0, -3)
	if err != nil {
		t.Fatalf("ListPolls() error = %v", err)
	}
	if len(polls) != 2 || polls[0].ID != second.ID || polls[1].ID != first.ID {
		t.Errorf("ListPolls() order wrong: %+v", polls)
	}

	page, err := rs.ListPolls(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ListPolls(1,1) error = %v", err)
	}
	if len(page) != 1 || page[0].ID != first.ID {
		t.Errorf("ListPolls(1,1) = %+v", page)
	}

	got, err := rs.GetPoll(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetPoll() error = %v", err)
	}
	if len(got.Options) != 3 {
		t.Errorf("options = %+v", got.Options)
	}
	if _, err := rs.GetPoll(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetPoll(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCatalog(t *testing.T) {
	rs := NewReportingService(nil, nil, nil, discardLogger())
	if n := len(rs.Catalog()); n != 5 {
		t.Errorf("len(Catalog()) = %d, want 5", n)
	}
}

func TestResolveLimit(t *testing.T) {
	tests := []struct {
		n, def, ceiling int
		want            int
		wantErr         bool
	}{
		{0, 10, 100, 10, false},
		{-1, 10, 100, 10, false},
		{5, 10, 100, 5, false},
		{100, 10, 100, 100, false},
		{101, 10, 100, 0, true},
	}
	for _, tt := range tests {
		got, err := resolveLimit(tt.n, tt.def, tt.ceiling)
		if (err != nil) != tt.wantErr {
			t.Fatalf("resolveLimit(%d) error = %v, wantErr %v", tt.n, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("resolveLimit(%d) error = %v, want ErrValidation", tt.n, err)
		}
		if got != tt.want {
			t.Errorf("resolveLimit(%d, %d, %d) = %d, want %d", tt.n, tt.def, tt.ceiling, got, tt.want)
		}
	}
}

func TestLimitsAboveMaxAreRejected(t *testing.T) {
	f, rs := newReportingFixture(t)
	ctx := context.Background()
	f.user(t, "alice")

	if _, err := rs.Leaderboard(ctx, MaxLeaderboardLimit+50); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Leaderboard(%d) error = %v, want ErrValidation", MaxLeaderboardLimit+50, err)
	}
	if _, err := rs.ListPolls(ctx, MaxListLimit+1, 0); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("ListPolls(%d) error = %v, want ErrValidation", MaxListLimit+1, err)
	}

	board, err := rs.Leaderboard(ctx, MaxLeaderboardLimit)
	if err != nil {
		t.Fatalf("Leaderboard(max) error = %v", err)
	}
	if len(board) != 1 {
		t.Errorf("len(board) = %d, want 1", len(board))
	}
}
