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
	"github.com/sakif/pollquest/internal/repository"
)

const pollColumns = `id, title, description, creator_id, creator_username,
	total_votes, created_at, is_active`

func scanPoll(s scanner) (*model.Poll, error) {
	var p model.Poll
	if err := s.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.CreatorID,
		&p.CreatorUsername,
		&p.TotalVotes,
		&p.CreatedAt,
		&p.IsActive,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePoll inserts the poll row, its options (in order) and its tags.
//
// ID, CreatedAt and any missing option IDs are assigned in place. All three
// tables are written in one transaction, so a failure part way leaves nothing
// behind.
func (db *DB) CreatePoll(ctx context.Context, poll *model.Poll) error {
	poll.ID = xid.New().String()
	poll.CreatedAt = time.Now().UTC()
	poll.TotalVotes = 0
	for i := range poll.Options {
		if poll.Options[i].ID == "" {
			poll.Options[i].ID = xid.New().String()
		}
		poll.Options[i].Votes = 0
		poll.Options[i].VoterIDs = []string{}
	}
	if poll.Tags == nil {
		poll.Tags = []string{}
	}

	return db.atomically(ctx, func(tx *DB) error {
		_, err := tx.q.ExecContext(ctx,
			`INSERT INTO polls (id, title, description, creator_id, creator_username,
			                    total_votes, created_at, is_active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			poll.ID,
			poll.Title,
			poll.Description,
			poll.CreatorID,
			poll.CreatorUsername,
			poll.TotalVotes,
			poll.CreatedAt,
			poll.IsActive,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return apperror.NotFound("user", poll.CreatorID)
			}
			return fmt.Errorf("sqlite: inserting poll: %w", err)
		}

		for pos, opt := range poll.Options {
			_, err := tx.q.ExecContext(ctx,
				`INSERT INTO poll_options (poll_id, id, position, text, votes)
				 VALUES (?, ?, ?, ?, 0)`,
				poll.ID, opt.ID, pos, opt.Text,
			)
			if err != nil {
				if isUniqueViolation(err) {
					return apperror.ValidationFailed("options", fmt.Sprintf("duplicate option id %q", opt.ID))
				}
				return fmt.Errorf("sqlite: inserting option %d of poll %s: %w", pos, poll.ID, err)
			}
		}

		for pos, tag := range poll.Tags {
			_, err := tx.q.ExecContext(ctx,
				`INSERT INTO poll_tags (poll_id, position, tag) VALUES (?, ?, ?)`,
				poll.ID, pos, tag,
			)
			if err != nil {
				return fmt.Errorf("sqlite: inserting tag %q of poll %s: %w", tag, poll.ID, err)
			}
		}
		return nil
	})
}

// GetPollByID returns the poll with its options, voter sets and tags.
// Returns apperror.ErrNotFound if no poll exists with that ID.
func (db *DB) GetPollByID(ctx context.Context, id string) (*model.Poll, error) {
	var poll *model.Poll
	err := db.atomically(ctx, func(tx *DB) error {
		p, err := scanPoll(tx.q.QueryRowContext(ctx,
			`SELECT `+pollColumns+` FROM polls WHERE id = ?`, id,
		))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("poll", id)
			}
			return fmt.Errorf("sqlite: getting poll %s: %w", id, err)
		}
		if err := tx.hydrate(ctx, p); err != nil {
			return err
		}
		poll = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return poll, nil
}

// ListActivePolls returns active polls, newest first, each fully hydrated.
func (db *DB) ListActivePolls(ctx context.Context, opts repository.ListOptions) ([]model.Poll, error) {
	var polls []model.Poll
	err := db.atomically(ctx, func(tx *DB) error {
		var err error
		polls, err = tx.listActivePollRows(ctx, opts)
		if err != nil {
			return err
		}
		// The pool has a single connection: the rows above are closed before
		// any of these follow-up queries run.
		for i := range polls {
			if err := tx.hydrate(ctx, &polls[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return polls, nil
}

func (db *DB) listActivePollRows(ctx context.Context, opts repository.ListOptions) ([]model.Poll, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT `+pollColumns+`
		 FROM polls
		 WHERE is_active = 1
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing polls: %w", err)
	}
	defer rows.Close()

	polls := make([]model.Poll, 0, opts.Limit)
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning poll row: %w", err)
		}
		polls = append(polls, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating polls: %w", err)
	}
	return polls, nil
}

// hydrate loads options, voters and tags into p.
func (db *DB) hydrate(ctx context.Context, p *model.Poll) error {
	options, err := db.loadOptions(ctx, p.ID)
	if err != nil {
		return err
	}
	voters, err := db.loadVoters(ctx, p.ID)
	if err != nil {
		return err
	}
	for i := range options {
		if ids, ok := voters[options[i].ID]; ok {
			options[i].VoterIDs = ids
		}
	}
	p.Options = options

	tags, err := db.loadTags(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Tags = tags
	return nil
}

func (db *DB) loadOptions(ctx context.Context, pollID string) ([]model.PollOption, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT id, text, votes FROM poll_options WHERE poll_id = ? ORDER BY position`, pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading options of poll %s: %w", pollID, err)
	}
	defer rows.Close()

	var options []model.PollOption
	for rows.Next() {
		opt := model.PollOption{VoterIDs: []string{}}
		if err := rows.Scan(&opt.ID, &opt.Text, &opt.Votes); err != nil {
			return nil, fmt.Errorf("sqlite: scanning option row: %w", err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating options: %w", err)
	}
	return options, nil
}

// loadVoters returns option id -> voter ids in the order the votes were cast.
func (db *DB) loadVoters(ctx context.Context, pollID string) (map[string][]string, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT option_id, user_id FROM poll_votes WHERE poll_id = ? ORDER BY voted_at, rowid`, pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading voters of poll %s: %w", pollID, err)
	}
	defer rows.Close()

	voters := make(map[string][]string)
	for rows.Next() {
		var optionID, userID string
		if err := rows.Scan(&optionID, &userID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning vote row: %w", err)
		}
		voters[optionID] = append(voters[optionID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating votes: %w", err)
	}
	return voters, nil
}

func (db *DB) loadTags(ctx context.Context, pollID string) ([]string, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT tag FROM poll_tags WHERE poll_id = ? ORDER BY position`, pollID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tags of poll %s: %w", pollID, err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, nil
}

// RecordVote adds userID to the option's voters and bumps the option and poll
// tallies, all in one transaction.
//
// Checks run in this order: unknown poll, unknown option, already voted,
// unknown user. The (poll_id, user_id) primary key on poll_votes backs up the
// already-voted check, so even a racing second insert fails with a Conflict
// rather than counting twice.
func (db *DB) RecordVote(ctx context.Context, pollID, optionID, userID string) (*model.VoteTally, error) {
	tally := &model.VoteTally{PollID: pollID}

	err := db.atomically(ctx, func(tx *DB) error {
		err := tx.q.QueryRowContext(ctx,
			`SELECT creator_id FROM polls WHERE id = ?`, pollID,
		).Scan(&tally.CreatorID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("poll", pollID)
			}
			return fmt.Errorf("sqlite: looking up poll %s: %w", pollID, err)
		}

		var exists int
		err = tx.q.QueryRowContext(ctx,
			`SELECT 1 FROM poll_options WHERE poll_id = ? AND id = ?`, pollID, optionID,
		).Scan(&exists)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("option", optionID)
			}
			return fmt.Errorf("sqlite: looking up option %s: %w", optionID, err)
		}

		err = tx.q.QueryRowContext(ctx,
			`SELECT 1 FROM poll_votes WHERE poll_id = ? AND user_id = ?`, pollID, userID,
		).Scan(&exists)
		switch {
		case err == nil:
			return apperror.AlreadyVoted(pollID)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("sqlite: checking prior vote: %w", err)
		}

		_, err = tx.q.ExecContext(ctx,
			`INSERT INTO poll_votes (poll_id, user_id, option_id, voted_at) VALUES (?, ?, ?, ?)`,
			pollID, userID, optionID, time.Now().UTC(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.AlreadyVoted(pollID)
			}
			if isForeignKeyViolation(err) {
				return apperror.NotFound("user", userID)
			}
			return fmt.Errorf("sqlite: inserting vote: %w", err)
		}

		if _, err := tx.q.ExecContext(ctx,
			`UPDATE poll_options SET votes = votes + 1 WHERE poll_id = ? AND id = ?`, pollID, optionID,
		); err != nil {
			return fmt.Errorf("sqlite: incrementing option %s: %w", optionID, err)
		}
		if _, err := tx.q.ExecContext(ctx,
			`UPDATE polls SET total_votes = total_votes + 1 WHERE id = ?`, pollID,
		); err != nil {
			return fmt.Errorf("sqlite: incrementing poll %s: %w", pollID, err)
		}

		err = tx.q.QueryRowContext(ctx,
			`SELECT total_votes FROM polls WHERE id = ?`, pollID,
		).Scan(&tally.TotalVotes)
		if err != nil {
			return fmt.Errorf("sqlite: reading total votes of poll %s: %w", pollID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tally, nil
}
