// Package achievement holds the static achievement catalog and the milestone
// policy that decides when each achievement is earned.
//
// The catalog is a fixed lookup table built at package init. It has no mutable
// state, so it is safe to read from any goroutine without locking.
package achievement

import (
	"sort"

	"github.com/sakif/pollquest/internal/model"
)

// Kind identifies a catalog entry, e.g. "vote_master".
type Kind string

const (
	FirstPoll       Kind = "first_poll"
	VoteMaster      Kind = "vote_master"
	PopularCreator  Kind = "popular_creator"
	ViralCreator    Kind = "viral_creator"
	ProlificCreator Kind = "prolific_creator"
)

// Definition describes what a user receives when a Kind is granted.
type Definition struct {
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	BadgeIcon   string `json:"badge_icon"`
	XPBonus     int    `json:"xp_bonus"`
}

var catalog = map[Kind]Definition{
	FirstPoll: {
		Kind:        FirstPoll,
		Title:       "First Poll Creator",
		Description: "Created your first poll!",
		BadgeIcon:   "🎯",
		XPBonus:     10,
	},
	VoteMaster: {
		Kind:        VoteMaster,
		Title:       "Vote Master",
		Description: "Cast 10 votes!",
		BadgeIcon:   "🗳️",
		XPBonus:     20,
	},
	PopularCreator: {
		Kind:        PopularCreator,
		Title:       "Popular Creator",
		Description: "Poll reached 50 votes!",
		BadgeIcon:   "🔥",
		XPBonus:     50,
	},
	ViralCreator: {
		Kind:        ViralCreator,
		Title:       "Viral Creator",
		Description: "Poll reached 100 votes!",
		BadgeIcon:   "🚀",
		XPBonus:     100,
	},
	ProlificCreator: {
		Kind:        ProlificCreator,
		Title:       "Prolific Creator",
		Description: "Created 10 polls!",
		BadgeIcon:   "📊",
		XPBonus:     75,
	},
}

// Lookup returns the definition for kind. ok is false for unknown kinds.
func Lookup(kind Kind) (Definition, bool) {
	def, ok := catalog[kind]
	return def, ok
}

// All returns every catalog entry sorted by kind.
func All() []Definition {
	defs := make([]Definition, 0, len(catalog))
	for _, def := range catalog {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Kind < defs[j].Kind })
	return defs
}

// NewRecord builds the Achievement record a grant of this definition writes.
// The store assigns ID and EarnedAt.
func (d Definition) NewRecord(userID string) *model.Achievement {
	return &model.Achievement{
		UserID:      userID,
		Title:       d.Title,
		Description: d.Description,
		BadgeIcon:   d.BadgeIcon,
		XPBonus:     d.XPBonus,
	}
}
