package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pollquest/internal/apperror"
	"github.com/sakif/pollquest/internal/model"
)

const userColumns = `id, username, email, password_hash, xp, total_polls_created,
	total_votes_cast, created_at, last_activity`

func scanUser(s scanner) (*model.User, error) {
	var u model.User
	if err := s.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.XP,
		&u.TotalPollsCreated,
		&u.TotalVotesCast,
		&u.CreatedAt,
		&u.LastActivity,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user, assigning ID and timestamps in place.
// The UNIQUE constraint on email turns a duplicate registration into a Conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.LastActivity = now

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, xp, total_polls_created,
		                    total_votes_cast, created_at, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.XP,
		user.TotalPollsCreated,
		user.TotalVotesCast,
		user.CreatedAt,
		user.LastActivity,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("email already registered")
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email. Returns apperror.ErrNotFound if absent.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// TouchLastActivity sets last_activity for the user.
func (db *DB) TouchLastActivity(ctx context.Context, id string, at time.Time) error {
	result, err := db.q.ExecContext(ctx,
		`UPDATE users SET last_activity = ? WHERE id = ?`, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching user %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// AddProgress increments the user's counters with a single UPDATE and reads
// the row back in the same transaction, so the caller sees exactly the values
// its own increment produced.
func (db *DB) AddProgress(ctx context.Context, id string, p model.Progress) (*model.User, error) {
	if p.XP < 0 || p.PollsCreated < 0 || p.VotesCast < 0 {
		return nil, fmt.Errorf("sqlite: negative progress %+v for user %s", p, id)
	}

	var user *model.User
	err := db.atomically(ctx, func(txDB *DB) error {
		result, err := txDB.q.ExecContext(ctx,
			`UPDATE users
			 SET xp = xp + ?,
			     total_polls_created = total_polls_created + ?,
			     total_votes_cast = total_votes_cast + ?
			 WHERE id = ?`,
			p.XP, p.PollsCreated, p.VotesCast, id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: adding progress to user %s: %w", id, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("user", id)
		}

		user, err = txDB.GetUserByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsersByXP returns up to limit users, highest xp first. Equal xp keeps
// registration order (rowid).
func (db *DB) ListUsersByXP(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY xp DESC, rowid ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users by xp: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}
