package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidewell/moorage/internal/connectivity"
	"github.com/tidewell/moorage/internal/push"
	"github.com/tidewell/moorage/internal/router"
	"github.com/tidewell/moorage/internal/store"
	"github.com/tidewell/moorage/internal/syncer"
	"github.com/tidewell/moorage/internal/testutil"
)

// Harness holds the components one scenario runs against.
type Harness struct {
	store      *store.Store
	server     *scriptedServer
	monitor    *connectivity.Monitor
	coord      *syncer.Coordinator
	router     *router.Router
	pushRouter *push.Router
	notifier   *captureNotifier
	windows    *captureWindows
}

// Run executes a scenario and returns its result.
//
// Each scenario gets a fresh in-memory database, a scripted server, and
// deterministic write ids, so the same scenario always produces the
// same trace. Replay rounds are invoked directly rather than through
// the coordinator's trigger loop; the loop's triggers are exercised by
// the syncer package's own tests.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	defer st.Close()

	server := newScriptedServer()
	monitor := connectivity.NewMonitor(connectivity.NewManualSource(connectivity.Online), st)
	monitor.Report(connectivity.Online)

	coord := syncer.NewCoordinator(st, server, monitor, syncer.Options{})

	clock := testutil.NewDeterministicClock()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rt := router.NewWithHooks(st, server, monitor, coord, syncer.DefaultTag,
		func() time.Time { return base.Add(time.Duration(clock.Current()) * time.Second) },
		func() string { return fmt.Sprintf("write-%06d", clock.Next()) },
	)

	notifier := &captureNotifier{}
	windows := &captureWindows{}

	h := &Harness{
		store:      st,
		server:     server,
		monitor:    monitor,
		coord:      coord,
		router:     rt,
		pushRouter: push.NewRouter(notifier, windows),
		notifier:   notifier,
		windows:    windows,
	}

	ctx := context.Background()
	result := &Result{Pass: true, Trace: []TraceEvent{}, Delivered: []Delivery{}, Submitted: []string{}, Notified: []string{}}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, &step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if err := h.finalize(ctx, result); err != nil {
		return nil, err
	}
	EvaluateAssertions(result, scenario.Assertions)
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, step *Step, result *Result) error {
	switch {
	case step.Submit != nil:
		payload, err := json.Marshal(step.Submit)
		if err != nil {
			return fmt.Errorf("marshal submit payload: %w", err)
		}
		res, err := h.router.CreateBooking(ctx, payload)
		if err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		outcome := "direct"
		if res.Offline {
			outcome = "queued"
		}
		if res.Rejected {
			outcome = "rejected"
		}
		result.Submitted = append(result.Submitted, res.ID)
		result.Trace = append(result.Trace, TraceEvent{Type: "submit", WriteID: res.ID, Outcome: outcome})

	case step.Network != "":
		state := connectivity.Offline
		if step.Network == "online" {
			state = connectivity.Online
		}
		h.monitor.Report(state)
		result.Trace = append(result.Trace, TraceEvent{Type: "network", State: state.String()})

	case step.Server != nil:
		h.server.push(step.Server)

	case step.Replay:
		report, err := h.coord.Replay(ctx)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		result.Trace = append(result.Trace, TraceEvent{
			Type:         "replay",
			Delivered:    report.Delivered,
			DeadLettered: report.DeadLettered,
			Remaining:    report.Remaining,
			Stopped:      report.Stopped,
		})

	case step.Push != nil:
		raw, err := json.Marshal(step.Push)
		if err != nil {
			return fmt.Errorf("marshal push payload: %w", err)
		}
		id := h.pushRouter.HandlePush(raw)
		result.Trace = append(result.Trace, TraceEvent{Type: "push", NotificationID: id, Dropped: id == ""})

	case step.Click != "":
		shown := h.notifier.Shown()
		if len(shown) == 0 {
			return fmt.Errorf("click: no notification has been shown")
		}
		id := shown[len(shown)-1]
		if err := h.pushRouter.HandleClick(id); err != nil {
			return fmt.Errorf("click: %w", err)
		}
		result.Trace = append(result.Trace, TraceEvent{
			Type:           "click",
			NotificationID: id,
			Target:         h.windows.LastTarget(),
		})
	}
	return nil
}

// finalize snapshots the durable state the assertions run against.
func (h *Harness) finalize(ctx context.Context, result *Result) error {
	pending, err := h.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	dead, err := h.store.ListDeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}

	result.QueueCount = len(pending)
	result.DeadLetterCount = len(dead)
	result.Delivered = h.server.Delivered()
	result.Notified = h.notifier.Shown()
	return nil
}
