package model

import "time"

// Poll is the aggregate a vote mutates: the poll row plus its embedded options.
//
// INVARIANTS:
//   - TotalVotes == sum of Options[i].Votes
//   - Options[i].Votes == len(Options[i].VoterIDs)
//   - a user id appears in at most one option's VoterIDs
//
// IsActive defaults to true. Nothing flips it yet; ListPolls filters on it.
type Poll struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Options         []PollOption `json:"options"`
	CreatorID       string       `json:"creator_id"`
	CreatorUsername string       `json:"creator_username"`
	TotalVotes      int          `json:"total_votes"`
	Tags            []string     `json:"tags"`
	CreatedAt       time.Time    `json:"created_at"`
	IsActive        bool         `json:"is_active"`
}

// PollOption is one choice inside a poll. Its ID is only unique within the poll.
type PollOption struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Votes    int      `json:"votes"`
	VoterIDs []string `json:"voter_ids"`
}

// VoteTally is what the poll store reports back after recording a vote.
type VoteTally struct {
	PollID     string
	CreatorID  string
	TotalVotes int
}
