// Package syncer replays queued writes against the booking server.
//
// The Coordinator is the deferred-task half of the offline write path.
// Register arms a one-shot replay; the signal channel has a buffer of
// one, so any number of registrations before a firing collapse into a
// single firing - callers must never assume N registrations produce N
// replays. Replay walks the queue strictly in insertion order and stops
// at the first transient failure, so a later write is never delivered
// ahead of a failed earlier one.
//
// Replay may fire concurrently from several processes sharing the store;
// every step is idempotent (ON CONFLICT no-ops locally, the idempotency
// key collapses duplicates server-side), so a double firing is a no-op
// rather than a duplicate booking.
package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tidewell/moorage/internal/api"
	"github.com/tidewell/moorage/internal/connectivity"
	"github.com/tidewell/moorage/internal/store"
)

// DefaultTag identifies the booking replay task.
const DefaultTag = "replay-bookings"

// DefaultRetryCeiling is the fixed retry budget per entry. An entry whose
// retry count exceeds this is dead-lettered rather than retried forever.
const DefaultRetryCeiling = 5

// Endpoint is the server capability replay needs.
type Endpoint interface {
	SubmitBooking(ctx context.Context, operation string, payload json.RawMessage, idempotencyKey string) error
}

// Queue is the slice of the durable store replay works against.
type Queue interface {
	ListPending(ctx context.Context) ([]store.PendingWrite, error)
	RemovePending(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string, cause string) (int, error)
	DeadLetterPending(ctx context.Context, id string, reason string) error
}

// Report summarizes one replay round.
type Report struct {
	Delivered    int  `json:"delivered"`     // acked by the server and removed
	DeadLettered int  `json:"dead_lettered"` // removed as permanent failures
	Remaining    int  `json:"remaining"`     // still queued after the round
	Stopped      bool `json:"stopped"`       // round ended early on a transient failure
}

// Options configures a Coordinator.
type Options struct {
	RetryCeiling int           // dead-letter threshold; default DefaultRetryCeiling
	BaseDelay    time.Duration // fallback backoff base; default 30s
	MaxDelay     time.Duration // fallback backoff cap; default 15m
	HostSync     bool          // capability: host-scheduled deferred tasks available
}

// Coordinator arranges and performs replay of the pending queue.
type Coordinator struct {
	queue    Queue
	endpoint Endpoint
	monitor  *connectivity.Monitor
	opts     Options

	// signal coalesces Register calls; buffer of one by contract.
	signal chan struct{}
}

// NewCoordinator creates a coordinator over the queue and endpoint.
// When opts.HostSync is false the host lacks a deferred-task API and the
// coordinator falls back to retry-on-online plus periodic polling within
// this process.
func NewCoordinator(queue Queue, endpoint Endpoint, monitor *connectivity.Monitor, opts Options) *Coordinator {
	if opts.RetryCeiling <= 0 {
		opts.RetryCeiling = DefaultRetryCeiling
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	return &Coordinator{
		queue:    queue,
		endpoint: endpoint,
		monitor:  monitor,
		opts:     opts,
		signal:   make(chan struct{}, 1),
	}
}

// Register asks for a future replay of the queue identified by tag.
// Multiple registrations before the task fires coalesce into one firing.
// Never blocks; safe from any goroutine.
func (c *Coordinator) Register(tag string) {
	select {
	case c.signal <- struct{}{}:
		slog.Debug("sync registered", "tag", tag)
	default:
		// A firing is already armed; this registration rides along.
	}
}

// Run services replay triggers until ctx is cancelled: Register signals,
// Offline-to-Online edges, and - without host sync - a fallback poll
// timer. Blocks; run in its own goroutine.
func (c *Coordinator) Run(ctx context.Context) error {
	states := c.monitor.Subscribe()

	var (
		failedRounds int
		retryTimer   *time.Timer
		retryC       <-chan time.Time
	)
	stopTimer := func() {
		if retryTimer != nil {
			retryTimer.Stop()
			retryTimer = nil
			retryC = nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.signal:
		case state := <-states:
			if state != connectivity.Online {
				// Nothing to do while offline; the next edge wakes us.
				stopTimer()
				continue
			}
		case <-retryC:
			retryTimer = nil
			retryC = nil
		}

		if c.monitor.State() != connectivity.Online {
			continue
		}

		report, err := c.Replay(ctx)
		if err != nil {
			slog.Error("replay aborted", "error", err)
			continue
		}

		if report.Stopped && report.Remaining > 0 {
			failedRounds++
			// Host-scheduled sync re-fires on its own; the fallback
			// strategy has to arm its own retry.
			if !c.opts.HostSync {
				stopTimer()
				delay := backoffDelay(failedRounds, c.opts.BaseDelay, c.opts.MaxDelay)
				retryTimer = time.NewTimer(delay)
				retryC = retryTimer.C
				slog.Debug("replay retry armed", "delay", delay.String(), "round", failedRounds)
			}
		} else {
			failedRounds = 0
			stopTimer()
		}
	}
}

// Replay drains the queue front-to-back once. Invoked by Run when a
// trigger fires, and directly by the CLI for a manual flush.
//
// Per entry: 2xx removes it; 4xx dead-letters it (retrying a permanently
// invalid write is pointless); a transient failure increments its retry
// count and ends the round so FIFO order is preserved. An entry over the
// retry ceiling is dead-lettered instead of retried.
func (c *Coordinator) Replay(ctx context.Context) (Report, error) {
	writes, err := c.queue.ListPending(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	report.Remaining = len(writes)

	for _, w := range writes {
		err := c.endpoint.SubmitBooking(ctx, w.Operation, w.Payload, w.ID)
		switch {
		case err == nil:
			if err := c.queue.RemovePending(ctx, w.ID); err != nil {
				return report, err
			}
			report.Delivered++
			report.Remaining--
			slog.Info("queued write delivered", "id", w.ID, "operation", w.Operation)

		case api.IsRejected(err):
			if dlErr := c.queue.DeadLetterPending(ctx, w.ID, err.Error()); dlErr != nil {
				return report, dlErr
			}
			report.DeadLettered++
			report.Remaining--
			slog.Warn("queued write rejected by server", "id", w.ID, "error", err)

		default:
			// Transient. Leave the entry queued unless its budget ran out,
			// then stop the batch - a later item must not overtake it.
			count, mErr := c.queue.MarkRetry(ctx, w.ID, err.Error())
			if mErr != nil {
				return report, mErr
			}
			if count > c.opts.RetryCeiling {
				if dlErr := c.queue.DeadLetterPending(ctx, w.ID, "retry budget exhausted: "+err.Error()); dlErr != nil {
					return report, dlErr
				}
				report.DeadLettered++
				report.Remaining--
				slog.Warn("queued write dead-lettered after retry budget", "id", w.ID, "retries", count)
			} else {
				slog.Debug("queued write delivery failed, staying queued", "id", w.ID, "retries", count, "error", err)
			}
			report.Stopped = true
			c.refreshCount(ctx)
			return report, nil
		}
	}

	c.refreshCount(ctx)
	return report, nil
}

func (c *Coordinator) refreshCount(ctx context.Context) {
	if c.monitor == nil {
		return
	}
	if _, err := c.monitor.RefreshPendingCount(ctx); err != nil {
		slog.Error("pending count refresh failed", "error", err)
	}
}
