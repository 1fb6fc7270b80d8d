// Package store provides the durable substrate for the offline write path.
//
// It owns a single SQLite database with four collections:
//
//   - pending_actions: the FIFO queue of writes captured while offline
//   - bookings: read-through snapshots served while the network is away
//   - push_subscription: the local mirror of the push registration
//   - dead_letters: writes that failed permanently and await user attention
//
// Multiple processes may hold the database open at once (the embedding app
// and the moorage daemon). Every operation is one short transaction; no
// transaction is ever held across a network call. All writes are idempotent
// at the SQL level (ON CONFLICT DO NOTHING / INSERT OR REPLACE) so that a
// crash between a server acknowledgment and the local delete is recoverable
// by simply repeating the operation.
package store
