package store

import (
	"context"
	"encoding/json"
	"time"
)

// BookingSnapshot is a read-through copy of a server-side booking,
// shown to the user while the network is away. Last write wins; there is
// no merge of concurrent edits.
type BookingSnapshot struct {
	ID        string
	Snapshot  json.RawMessage
	FetchedAt time.Time
}

// PutBooking upserts a snapshot, keyed by entity id.
func (s *Store) PutBooking(ctx context.Context, id string, snapshot json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, snapshot, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, fetched_at = excluded.fetched_at
	`, id, string(snapshot), time.Now().UnixMilli())
	if err != nil {
		return storageErr("put booking", err)
	}
	return nil
}

// GetBooking returns one snapshot. Check IsNotFound on error.
func (s *Store) GetBooking(ctx context.Context, id string) (BookingSnapshot, error) {
	var (
		b       BookingSnapshot
		raw     string
		fetched int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, snapshot, fetched_at FROM bookings WHERE id = ?
	`, id).Scan(&b.ID, &raw, &fetched)
	if err != nil {
		return BookingSnapshot{}, storageErr("get booking", err)
	}
	b.Snapshot = json.RawMessage(raw)
	b.FetchedAt = time.UnixMilli(fetched)
	return b, nil
}

// ListBookings returns all cached snapshots, most recently fetched first.
func (s *Store) ListBookings(ctx context.Context) ([]BookingSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, snapshot, fetched_at FROM bookings ORDER BY fetched_at DESC
	`)
	if err != nil {
		return nil, storageErr("list bookings", err)
	}
	defer rows.Close()

	snaps := []BookingSnapshot{}
	for rows.Next() {
		var (
			b       BookingSnapshot
			raw     string
			fetched int64
		)
		if err := rows.Scan(&b.ID, &raw, &fetched); err != nil {
			return nil, storageErr("list bookings", err)
		}
		b.Snapshot = json.RawMessage(raw)
		b.FetchedAt = time.UnixMilli(fetched)
		snaps = append(snaps, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list bookings", err)
	}
	return snaps, nil
}
