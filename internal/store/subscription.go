package store

import (
	"context"
	"time"
)

// Subscription mirrors a push registration. The local row is the source
// of truth for "am I subscribed"; the server copy is the source of truth
// for "who do I push to".
type Subscription struct {
	UserID    string
	Endpoint  string
	P256DH    string
	Auth      string
	CreatedAt time.Time
}

// SaveSubscription upserts the local subscription record.
func (s *Store) SaveSubscription(ctx context.Context, sub Subscription) error {
	created := sub.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscription (user_id, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			endpoint = excluded.endpoint,
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			created_at = excluded.created_at
	`, sub.UserID, sub.Endpoint, sub.P256DH, sub.Auth, created.UnixMilli())
	if err != nil {
		return storageErr("save subscription", err)
	}
	return nil
}

// GetSubscription returns the local record for a user.
// Check IsNotFound on error for "not subscribed".
func (s *Store) GetSubscription(ctx context.Context, userID string) (Subscription, error) {
	var (
		sub     Subscription
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, endpoint, p256dh, auth, created_at
		FROM push_subscription WHERE user_id = ?
	`, userID).Scan(&sub.UserID, &sub.Endpoint, &sub.P256DH, &sub.Auth, &created)
	if err != nil {
		return Subscription{}, storageErr("get subscription", err)
	}
	sub.CreatedAt = time.UnixMilli(created)
	return sub, nil
}

// ListSubscriptions returns every local subscription record. The daemon
// attaches a push listener to each endpoint found here at startup.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, endpoint, p256dh, auth, created_at
		FROM push_subscription ORDER BY user_id
	`)
	if err != nil {
		return nil, storageErr("list subscriptions", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var (
			sub     Subscription
			created int64
		)
		if err := rows.Scan(&sub.UserID, &sub.Endpoint, &sub.P256DH, &sub.Auth, &created); err != nil {
			return nil, storageErr("list subscriptions", err)
		}
		sub.CreatedAt = time.UnixMilli(created)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list subscriptions", err)
	}
	return subs, nil
}

// DeleteSubscription removes the local record. Idempotent: deleting an
// absent subscription is not an error ("already unsubscribed" tolerance).
func (s *Store) DeleteSubscription(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscription WHERE user_id = ?`, userID)
	if err != nil {
		return storageErr("delete subscription", err)
	}
	return nil
}
