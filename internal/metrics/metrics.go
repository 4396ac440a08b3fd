// Package metrics holds the Prometheus collectors the service exposes on
// /metrics.
//
// Collectors are registered against the Registerer passed to New, never the
// global default registry, so each test can use its own prometheus.NewRegistry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pollquest"

// XP sources, used as the "source" label of XPAwarded.
const (
	SourceVote        = "vote"
	SourcePoll        = "poll"
	SourceAchievement = "achievement"
	SourcePopularity  = "popularity"
)

type Metrics struct {
	VotesCast           prometheus.Counter
	VotesRejected       *prometheus.CounterVec // label: reason
	PollsCreated        prometheus.Counter
	AchievementsGranted *prometheus.CounterVec // label: kind
	XPAwarded           *prometheus.CounterVec // label: source
	LeaderboardCache    *prometheus.CounterVec // label: result (hit, miss)

	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: method, route
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VotesCast: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "Votes recorded.",
		}),
		VotesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_rejected_total",
			Help:      "Vote attempts that did not change any state, by reason.",
		}, []string{"reason"}),
		PollsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_created_total",
			Help:      "Polls created.",
		}),
		AchievementsGranted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_granted_total",
			Help:      "Achievements granted, by kind.",
		}, []string{"kind"}),
		XPAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_awarded_total",
			Help:      "Experience points awarded, by source.",
		}, []string{"source"}),
		LeaderboardCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_cache_requests_total",
			Help:      "Leaderboard cache lookups, by result.",
		}, []string{"result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NewNop returns collectors bound to a throwaway registry. Used by tests that
// do not inspect metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
