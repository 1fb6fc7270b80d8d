package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PendingWrite is one queued offline mutation. ID doubles as the
// idempotency key sent to the server on replay, so the server can
// collapse duplicate submissions of the same logical action.
type PendingWrite struct {
	Seq        int64           // insertion order, assigned by the store
	ID         string          // client-generated UUID, unique in the queue
	Operation  string          // e.g. "create-booking"
	Payload    json.RawMessage // canonical JSON captured at submission time
	CreatedAt  time.Time
	RetryCount int
	LastError  string
}

// PendingWriteInput is the caller-supplied portion of a PendingWrite.
type PendingWriteInput struct {
	ID        string
	Operation string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// DeadLetter is a write that was permanently removed from retry, either
// because the server rejected it as invalid or because it exhausted its
// retry budget. Surfaced to the user; never retried automatically.
type DeadLetter struct {
	Seq        int64
	ID         string
	Operation  string
	Payload    json.RawMessage
	CreatedAt  time.Time
	RetryCount int
	Reason     string
	DeadAt     time.Time
}

// AddPending appends a write to the queue. Durable before the call
// returns. Adding the same ID twice is a silent no-op, preserving the
// invariant that the queue never holds two entries with one ID.
func (s *Store) AddPending(ctx context.Context, in PendingWriteInput) error {
	if in.ID == "" {
		return storageErr("add pending", fmt.Errorf("empty id"))
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (id, operation, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		in.ID,
		in.Operation,
		string(in.Payload),
		created.UnixMilli(),
	)
	if err != nil {
		return storageErr("add pending", err)
	}
	return nil
}

// ListPending returns every queued write in insertion order.
// Returns an empty slice (never a partial batch) when the queue is empty.
func (s *Store) ListPending(ctx context.Context) ([]PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, operation, payload, created_at, retry_count, last_error
		FROM pending_actions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, storageErr("list pending", err)
	}
	defer rows.Close()

	writes := []PendingWrite{}
	for rows.Next() {
		var (
			w       PendingWrite
			payload string
			created int64
		)
		if err := rows.Scan(&w.Seq, &w.ID, &w.Operation, &payload, &created, &w.RetryCount, &w.LastError); err != nil {
			return nil, storageErr("list pending", err)
		}
		w.Payload = json.RawMessage(payload)
		w.CreatedAt = time.UnixMilli(created)
		writes = append(writes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list pending", err)
	}
	return writes, nil
}

// RemovePending deletes a queued write after server acknowledgment.
// Idempotent: removing a nonexistent id is not an error, so a duplicate
// replay firing that races a completed one is harmless.
func (s *Store) RemovePending(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id)
	if err != nil {
		return storageErr("remove pending", err)
	}
	return nil
}

// MarkRetry records a transient delivery failure against a queued write
// and returns the new retry count. The entry stays queued; the caller
// decides whether the count has crossed the dead-letter ceiling.
func (s *Store) MarkRetry(ctx context.Context, id string, cause string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("mark retry", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		UPDATE pending_actions
		SET retry_count = retry_count + 1, last_error = ?
		WHERE id = ?
	`, cause, id)
	if err != nil {
		return 0, storageErr("mark retry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("mark retry", err)
	}
	if affected == 0 {
		// Entry already acked or dead-lettered by a concurrent replay.
		return 0, tx.Commit()
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT retry_count FROM pending_actions WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, storageErr("mark retry", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("mark retry", err)
	}
	return count, nil
}

// DeadLetterPending moves a queued write to dead_letters in a single
// transaction, so the entry is never observable in both collections and
// never absent from both (visibility invariant for getPendingBookings).
// Idempotent: a second call for the same id is a no-op.
func (s *Store) DeadLetterPending(ctx context.Context, id string, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("dead-letter", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dead_letters (id, operation, payload, created_at, retry_count, reason, dead_at)
		SELECT id, operation, payload, created_at, retry_count, ?, ?
		FROM pending_actions WHERE id = ?
		ON CONFLICT(id) DO NOTHING
	`, reason, time.Now().UnixMilli(), id)
	if err != nil {
		return storageErr("dead-letter", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id); err != nil {
		return storageErr("dead-letter", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("dead-letter", err)
	}
	return nil
}

// RecordDeadLetter inserts a terminal failure that never went through the
// queue (a 4xx on the optimistic direct path). Duplicate ids are ignored.
func (s *Store) RecordDeadLetter(ctx context.Context, in PendingWriteInput, reason string) error {
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, operation, payload, created_at, retry_count, reason, dead_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		in.ID,
		in.Operation,
		string(in.Payload),
		created.UnixMilli(),
		reason,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return storageErr("record dead-letter", err)
	}
	return nil
}

// ListDeadLetters returns terminal failures, oldest first.
func (s *Store) ListDeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, operation, payload, created_at, retry_count, reason, dead_at
		FROM dead_letters
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, storageErr("list dead-letters", err)
	}
	defer rows.Close()

	letters := []DeadLetter{}
	for rows.Next() {
		var (
			d       DeadLetter
			payload string
			created int64
			deadAt  int64
		)
		if err := rows.Scan(&d.Seq, &d.ID, &d.Operation, &payload, &created, &d.RetryCount, &d.Reason, &deadAt); err != nil {
			return nil, storageErr("list dead-letters", err)
		}
		d.Payload = json.RawMessage(payload)
		d.CreatedAt = time.UnixMilli(created)
		d.DeadAt = time.UnixMilli(deadAt)
		letters = append(letters, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list dead-letters", err)
	}
	return letters, nil
}

// PendingCount returns the number of queued writes. Feeds the UI badge
// via the connectivity monitor.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions`).Scan(&count)
	if err != nil {
		return 0, storageErr("pending count", err)
	}
	return count, nil
}

// GetPending returns a single queued write by id, or sql.ErrNoRows
// wrapped in a StorageError if it is not queued.
func (s *Store) GetPending(ctx context.Context, id string) (PendingWrite, error) {
	var (
		w       PendingWrite
		payload string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, id, operation, payload, created_at, retry_count, last_error
		FROM pending_actions WHERE id = ?
	`, id).Scan(&w.Seq, &w.ID, &w.Operation, &payload, &created, &w.RetryCount, &w.LastError)
	if err != nil {
		return PendingWrite{}, storageErr("get pending", err)
	}
	w.Payload = json.RawMessage(payload)
	w.CreatedAt = time.UnixMilli(created)
	return w, nil
}

// IsNotFound reports whether a Get* failure means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
