// Package model defines the users, polls and achievements shared by the
// storage, service and HTTP layers.
package model

import "time"

// User represents a registered account and its progression counters.
//
// XP only ever grows: every write path adds a non-negative delta, nothing
// subtracts. The counters are bumped by the progression engine, never by
// handlers directly.
//
// PasswordHash carries `json:"-"` so a User can never leak its hash through
// an encoder by accident. Handlers respond with UserProfile anyway.
type User struct {
	ID                string    `json:"id"                db:"id"`
	Username          string    `json:"username"          db:"username"`
	Email             string    `json:"email"             db:"email"`
	PasswordHash      string    `json:"-"                 db:"password_hash"`
	XP                int       `json:"xp"                db:"xp"`
	TotalPollsCreated int       `json:"total_polls_created" db:"total_polls_created"`
	TotalVotesCast    int       `json:"total_votes_cast"  db:"total_votes_cast"`
	CreatedAt         time.Time `json:"created_at"        db:"created_at"`
	LastActivity      time.Time `json:"last_activity"     db:"last_activity"`
}

// UserProfile is the public projection of a User.
type UserProfile struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Email             string    `json:"email"`
	XP                int       `json:"xp"`
	TotalPollsCreated int       `json:"total_polls_created"`
	TotalVotesCast    int       `json:"total_votes_cast"`
	CreatedAt         time.Time `json:"created_at"`
}

// Profile projects the user into its public fields.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		XP:                u.XP,
		TotalPollsCreated: u.TotalPollsCreated,
		TotalVotesCast:    u.TotalVotesCast,
		CreatedAt:         u.CreatedAt,
	}
}

// Progress is an additive change to a user's XP and activity counters.
// All fields must be non-negative.
type Progress struct {
	XP           int
	PollsCreated int
	VotesCast    int
}
