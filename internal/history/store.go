// Package history persists conversation turns and per-user message
// counters in PostgreSQL. Rows carry an expiry so an idle conversation
// ages out the way a cache entry would; expired rows are invisible to
// reads and swept in the background.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baronchat/baron/internal/conv"
	"github.com/baronchat/baron/internal/log"
)

// ErrNoHistory indicates the user has no live conversation to operate on.
var ErrNoHistory = errors.New("history: no conversation found")

// Store reads and writes conversation state. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	ttl    time.Duration
	logger log.Logger
}

// New creates a Store. ttl bounds how long an idle conversation stays
// readable; every append renews it.
func New(pool *pgxpool.Pool, ttl time.Duration, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("history: pool is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("history: ttl must be positive, got %s", ttl)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, ttl: ttl, logger: logger}, nil
}

// Load returns the user's live turns in insertion order. A user with no
// live turns gets an empty slice, not an error.
func (s *Store) Load(ctx context.Context, userID string) ([]conv.Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT turn FROM chat_turns
		 WHERE user_id = $1 AND expires_at > now()
		 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var turns []conv.Turn
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		var turn conv.Turn
		if err := json.Unmarshal(raw, &turn); err != nil {
			return nil, fmt.Errorf("decoding turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return turns, nil
}

// Append stores turns at the end of the user's conversation and renews
// the expiry of the whole conversation, all in one transaction.
func (s *Store) Append(ctx context.Context, userID string, turns ...conv.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback(ctx)

	var maxSeq int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM chat_turns WHERE user_id = $1`,
		userID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("reading max seq: %w", err)
	}

	expiresAt := time.Now().Add(s.ttl)
	for i, turn := range turns {
		payload, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("encoding turn: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_turns (user_id, seq, turn, expires_at)
			 VALUES ($1, $2, $3, $4)`,
			userID, maxSeq+int64(i)+1, payload, expiresAt)
		if err != nil {
			return fmt.Errorf("inserting turn: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE chat_turns SET expires_at = $2 WHERE user_id = $1`,
		userID, expiresAt)
	if err != nil {
		return fmt.Errorf("renewing expiry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// PopLastExchange removes the most recent exchange: the trailing model
// turns plus the user turn that prompted them. It returns that user
// turn's text so the caller can replay it. Returns ErrNoHistory when
// there is no live user turn to pop.
func (s *Store) PopLastExchange(ctx context.Context, userID string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning pop: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT seq, turn FROM chat_turns
		 WHERE user_id = $1 AND expires_at > now()
		 ORDER BY seq DESC
		 FOR UPDATE`, userID)
	if err != nil {
		return "", fmt.Errorf("locking history: %w", err)
	}

	type row struct {
		seq  int64
		turn conv.Turn
	}
	var trailing []row
	var userRow *row
	for rows.Next() {
		var r row
		var raw []byte
		if err := rows.Scan(&r.seq, &raw); err != nil {
			rows.Close()
			return "", fmt.Errorf("scanning turn: %w", err)
		}
		if err := json.Unmarshal(raw, &r.turn); err != nil {
			rows.Close()
			return "", fmt.Errorf("decoding turn: %w", err)
		}
		if r.turn.Role == conv.RoleUser {
			userRow = &r
			break
		}
		trailing = append(trailing, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading history: %w", err)
	}
	if userRow == nil {
		return "", ErrNoHistory
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM chat_turns WHERE user_id = $1 AND seq >= $2`,
		userID, userRow.seq)
	if err != nil {
		return "", fmt.Errorf("deleting exchange: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing pop: %w", err)
	}
	return userRow.turn.FirstText(), nil
}

// Usage returns how many messages the user has consumed.
func (s *Store) Usage(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM chat_usage WHERE user_id = $1`, userID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading usage: %w", err)
	}
	return count, nil
}

// IncrementUsage bumps the user's counter and returns the new value.
func (s *Store) IncrementUsage(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_usage (user_id, count, updated_at)
		 VALUES ($1, 1, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET count = chat_usage.count + 1, updated_at = now()
		 RETURNING count`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing usage: %w", err)
	}
	return count, nil
}

// Sweep deletes expired turns and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chat_turns WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired turns: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StartSweeper runs Sweep on the given interval until ctx is done.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Sweep(ctx)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("history sweep failed", "error", err)
					}
					continue
				}
				if n > 0 {
					s.logger.Debug("history sweep", "removed", n)
				}
			}
		}
	}()
}
