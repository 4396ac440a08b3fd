package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pollquest/internal/apperror"
	"github.com/sakif/pollquest/internal/model"
)

// InsertAchievement writes a unless the user already holds an achievement with
// the same title. ON CONFLICT DO NOTHING makes the check and the write a single
// statement; RowsAffected tells the caller which way it went.
//
// ID and EarnedAt are assigned in place only when the row is actually written.
func (db *DB) InsertAchievement(ctx context.Context, a *model.Achievement) (bool, error) {
	id := xid.New().String()
	earnedAt := time.Now().UTC()

	result, err := db.q.ExecContext(ctx,
		`INSERT INTO achievements (id, user_id, title, description, badge_icon, earned_at, xp_bonus)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, title) DO NOTHING`,
		id,
		a.UserID,
		a.Title,
		a.Description,
		a.BadgeIcon,
		earnedAt,
		a.XPBonus,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, apperror.NotFound("user", a.UserID)
		}
		return false, fmt.Errorf("sqlite: inserting achievement %q for user %s: %w", a.Title, a.UserID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	a.ID = id
	a.EarnedAt = earnedAt
	return true, nil
}

// ListAchievementsByUser returns up to limit achievements, most recent first.
func (db *DB) ListAchievementsByUser(ctx context.Context, userID string, limit int) ([]model.Achievement, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT id, user_id, title, description, badge_icon, earned_at, xp_bonus
		 FROM achievements
		 WHERE user_id = ?
		 ORDER BY earned_at DESC, rowid DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing achievements of user %s: %w", userID, err)
	}
	defer rows.Close()

	achievements := []model.Achievement{}
	for rows.Next() {
		var a model.Achievement
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.Title,
			&a.Description,
			&a.BadgeIcon,
			&a.EarnedAt,
			&a.XPBonus,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning achievement row: %w", err)
		}
		achievements = append(achievements, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating achievements: %w", err)
	}
	return achievements, nil
}
