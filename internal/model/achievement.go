package model

import "time"

// Achievement is a badge a user has earned. Records are immutable once written
// and the store keeps at most one per (UserID, Title).
type Achievement struct {
	ID          string    `json:"id"          db:"id"`
	UserID      string    `json:"user_id"     db:"user_id"`
	Title       string    `json:"title"       db:"title"`
	Description string    `json:"description" db:"description"`
	BadgeIcon   string    `json:"badge_icon"  db:"badge_icon"`
	EarnedAt    time.Time `json:"earned_at"   db:"earned_at"`
	XPBonus     int       `json:"xp_bonus"    db:"xp_bonus"`
}
