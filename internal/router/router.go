// Package router is the single UI-facing entry point for booking writes.
//
// CreateBooking routes each write to the network or to the durable queue
// depending on reachability. Transient trouble is never an error here: a
// timeout while nominally online is treated exactly like being offline
// and the write is captured for replay. The only error that crosses this
// API is store.StorageError - the one failure mode with no fallback,
// which the caller must surface because the write was lost.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tidewell/moorage/internal/api"
	"github.com/tidewell/moorage/internal/canon"
	"github.com/tidewell/moorage/internal/connectivity"
	"github.com/tidewell/moorage/internal/store"
)

// OpCreateBooking is the operation type recorded for booking submissions.
const OpCreateBooking = "create-booking"

// Result reports how a write was handled.
type Result struct {
	Success bool   // captured durably or acknowledged by the server
	Offline bool   // true when the write was queued for replay
	ID      string // the write's id / idempotency key
	// Rejected is set when the server refused the payload as invalid on
	// the direct path. The write is dead-lettered, not queued: a
	// validation failure is permanent and re-queuing would mask it as
	// retryable.
	Rejected bool
	Reason   string
}

// Registrar arranges future replay; satisfied by syncer.Coordinator.
type Registrar interface {
	Register(tag string)
}

// Endpoint is the direct-submission capability of the booking server.
type Endpoint interface {
	SubmitBooking(ctx context.Context, operation string, payload json.RawMessage, idempotencyKey string) error
	FetchBookings(ctx context.Context) ([]api.Booking, error)
}

// Router decides, per write, between direct submission and durable
// queueing. Explicitly constructed and passed around; no package state.
type Router struct {
	store     *store.Store
	endpoint  Endpoint
	monitor   *connectivity.Monitor
	registrar Registrar
	tag       string
	now       func() time.Time
	newID     func() string
}

// New creates a Router. tag is the sync tag registered after every
// queued write; empty means the registrar's caller chose the default.
func New(st *store.Store, endpoint Endpoint, monitor *connectivity.Monitor, registrar Registrar, tag string) *Router {
	return &Router{
		store:     st,
		endpoint:  endpoint,
		monitor:   monitor,
		registrar: registrar,
		tag:       tag,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NewWithHooks creates a Router with injected time and id sources.
// Deterministic tests and the conformance harness use this; production
// wiring uses New.
func NewWithHooks(st *store.Store, endpoint Endpoint, monitor *connectivity.Monitor, registrar Registrar, tag string, now func() time.Time, newID func() string) *Router {
	r := New(st, endpoint, monitor, registrar, tag)
	if now != nil {
		r.now = now
	}
	if newID != nil {
		r.newID = newID
	}
	return r
}

// CreateBooking submits a booking payload.
//
//   - Online: direct POST. Success returns {Success, Offline:false}.
//     Transient failure mid-flight falls through to the offline path.
//     A 4xx dead-letters the write and returns {Rejected:true}.
//   - Offline (or after the fallback): the write is persisted, replay is
//     registered, and {Success, Offline:true} is returned.
//
// The returned error is only ever a StorageError (or a malformed
// payload, which is a caller bug, not connectivity).
func (r *Router) CreateBooking(ctx context.Context, payload json.RawMessage) (Result, error) {
	canonical, err := canon.Raw(payload)
	if err != nil {
		return Result{}, fmt.Errorf("invalid booking payload: %w", err)
	}

	write := store.PendingWriteInput{
		ID:        r.newID(),
		Operation: OpCreateBooking,
		Payload:   canonical,
		CreatedAt: r.now(),
	}

	if r.monitor.State() == connectivity.Online {
		err := r.endpoint.SubmitBooking(ctx, write.Operation, write.Payload, write.ID)
		switch {
		case err == nil:
			slog.Info("booking submitted directly", "id", write.ID)
			return Result{Success: true, ID: write.ID}, nil

		case api.IsRejected(err):
			if dlErr := r.store.RecordDeadLetter(ctx, write, err.Error()); dlErr != nil {
				return Result{}, dlErr
			}
			slog.Warn("booking rejected on direct path", "id", write.ID, "error", err)
			return Result{ID: write.ID, Rejected: true, Reason: err.Error()}, nil

		default:
			// Transient failure while nominally online: identical to
			// being offline. Fall through to the durable path.
			slog.Debug("direct submission failed, queueing", "id", write.ID, "error", err)
		}
	}

	return r.enqueue(ctx, write)
}

// enqueue is the add-then-register-sync sequence: the write is durable
// before Register is called, so a crash between the two steps leaves the
// write recoverable by the next trigger.
func (r *Router) enqueue(ctx context.Context, write store.PendingWriteInput) (Result, error) {
	if err := r.store.AddPending(ctx, write); err != nil {
		// No tertiary fallback: the write is lost and the caller must
		// know it.
		return Result{}, err
	}
	if r.registrar != nil {
		r.registrar.Register(r.tag)
	}
	if count, err := r.monitor.RefreshPendingCount(ctx); err == nil {
		slog.Info("booking queued for replay", "id", write.ID, "pending", count)
	}
	return Result{Success: true, Offline: true, ID: write.ID}, nil
}

// PendingBookings lists queued writes for the UI. An entry is visible
// here until, and only until, its ack or dead-letter commits.
func (r *Router) PendingBookings(ctx context.Context) ([]store.PendingWrite, error) {
	return r.store.ListPending(ctx)
}

// Bookings serves the read path. Online it fetches live data and
// refreshes the local snapshots; offline (or on a transient fetch
// failure) it serves the cached snapshots instead of an error.
func (r *Router) Bookings(ctx context.Context) ([]store.BookingSnapshot, error) {
	if r.monitor.State() == connectivity.Online {
		bookings, err := r.endpoint.FetchBookings(ctx)
		if err == nil {
			for _, b := range bookings {
				if putErr := r.store.PutBooking(ctx, b.ID, b.Raw); putErr != nil {
					return nil, putErr
				}
			}
			return r.store.ListBookings(ctx)
		}
		if api.IsRejected(err) {
			return nil, err
		}
		slog.Debug("live booking fetch failed, serving snapshots", "error", err)
	}
	return r.store.ListBookings(ctx)
}
