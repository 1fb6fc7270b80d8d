package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewell/moorage/internal/api"
	"github.com/tidewell/moorage/internal/connectivity"
	"github.com/tidewell/moorage/internal/store"
)

// scriptedEndpoint answers submissions from a per-key script; keys with
// no script are acknowledged. Acknowledged keys are recorded in order.
type scriptedEndpoint struct {
	mu        sync.Mutex
	responses map[string][]error
	delivered []string
}

func newScriptedEndpoint() *scriptedEndpoint {
	return &scriptedEndpoint{responses: make(map[string][]error)}
}

func (e *scriptedEndpoint) script(key string, errs ...error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[key] = append(e.responses[key], errs...)
}

func (e *scriptedEndpoint) SubmitBooking(_ context.Context, _ string, _ json.RawMessage, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if queue := e.responses[key]; len(queue) > 0 {
		err := queue[0]
		e.responses[key] = queue[1:]
		if err != nil {
			return err
		}
	}
	e.delivered = append(e.delivered, key)
	return nil
}

func (e *scriptedEndpoint) Delivered() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.delivered...)
}

func newTestCoordinator(t *testing.T, opts Options) (*Coordinator, *store.Store, *scriptedEndpoint, *connectivity.Monitor) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	endpoint := newScriptedEndpoint()
	monitor := connectivity.NewMonitor(connectivity.NewManualSource(connectivity.Online), st)
	monitor.Report(connectivity.Online)
	return NewCoordinator(st, endpoint, monitor, opts), st, endpoint, monitor
}

func enqueue(t *testing.T, st *store.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, st.AddPending(context.Background(), store.PendingWriteInput{
			ID:        id,
			Operation: "create-booking",
			Payload:   json.RawMessage(`{"charter_id":"c-7"}`),
		}))
	}
}

func TestReplayDeliversInOrder(t *testing.T) {
	coord, st, endpoint, _ := newTestCoordinator(t, Options{})
	enqueue(t, st, "w-1", "w-2", "w-3")

	report, err := coord.Replay(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, 0, report.Remaining)
	assert.False(t, report.Stopped)
	assert.Equal(t, []string{"w-1", "w-2", "w-3"}, endpoint.Delivered())

	count, err := st.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReplayEmptyQueue(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(t, Options{})

	report, err := coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestReplayStopsAtTransientFailure(t *testing.T) {
	coord, st, endpoint, _ := newTestCoordinator(t, Options{})
	enqueue(t, st, "w-1", "w-2", "w-3")
	endpoint.script("w-2", &api.NetworkError{Err: errors.New("timeout")})

	report, err := coord.Replay(context.Background())
	require.NoError(t, err)

	// w-1 delivered, w-2 failed and stopped the round, w-3 untouched.
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 2, report.Remaining)
	assert.True(t, report.Stopped)
	assert.Equal(t, []string{"w-1"}, endpoint.Delivered())

	writes, err := st.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, writes, 2)
	assert.Equal(t, "w-2", writes[0].ID)
	assert.Equal(t, 1, writes[0].RetryCount)
	assert.Equal(t, "w-3", writes[1].ID)
	assert.Equal(t, 0, writes[1].RetryCount)
}

func TestReplayResumesAfterFailureClears(t *testing.T) {
	coord, st, endpoint, _ := newTestCoordinator(t, Options{})
	enqueue(t, st, "w-1", "w-2")
	endpoint.script("w-1", &api.NetworkError{Err: errors.New("reset")})

	first, err := coord.Replay(context.Background())
	require.NoError(t, err)
	assert.True(t, first.Stopped)

	second, err := coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Delivered)
	assert.False(t, second.Stopped)
	assert.Equal(t, []string{"w-1", "w-2"}, endpoint.Delivered())
}

func TestReplayDeadLettersRejection(t *testing.T) {
	coord, st, endpoint, _ := newTestCoordinator(t, Options{})
	enqueue(t, st, "w-1", "w-2")
	endpoint.script("w-1", &api.RejectedError{Status: 422, Body: "bad date"})

	report, err := coord.Replay(context.Background())
	require.NoError(t, err)

	// A rejection removes the entry but does not stop the round.
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.DeadLettered)
	assert.Equal(t, 0, report.Remaining)
	assert.False(t, report.Stopped)
	assert.Equal(t, []string{"w-2"}, endpoint.Delivered())

	letters, err := st.ListDeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "w-1", letters[0].ID)
	assert.Contains(t, letters[0].Reason, "422")
}

func TestReplayRetryCeilingDeadLetters(t *testing.T) {
	coord, st, endpoint, _ := newTestCoordinator(t, Options{RetryCeiling: 2})
	enqueue(t, st, "w-1")
	endpoint.script("w-1",
		&api.NetworkError{Err: errors.New("attempt 1")},
		&api.NetworkError{Err: errors.New("attempt 2")},
		&api.NetworkError{Err: errors.New("attempt 3")},
	)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		report, err := coord.Replay(ctx)
		require.NoError(t, err)
		assert.True(t, report.Stopped)
		assert.Equal(t, 0, report.DeadLettered)
	}

	// Third failure pushes the count over the ceiling.
	report, err := coord.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeadLettered)

	letters, err := st.ListDeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].Reason, "retry budget exhausted")

	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReplayRefreshesPendingCount(t *testing.T) {
	coord, st, _, monitor := newTestCoordinator(t, Options{})
	enqueue(t, st, "w-1")
	_, err := monitor.RefreshPendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, monitor.PendingCount())

	_, err = coord.Replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, monitor.PendingCount())
}

func TestRegisterCoalesces(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(t, Options{})

	// Many registrations before the task fires collapse into one armed
	// signal; none of them block.
	for i := 0; i < 10; i++ {
		coord.Register(DefaultTag)
	}

	select {
	case <-coord.signal:
	default:
		t.Fatal("no signal armed")
	}
	select {
	case <-coord.signal:
		t.Fatal("more than one signal armed")
	default:
	}
}

func TestRunReplaysOnRegister(t *testing.T) {
	coord, st, endpoint, _ := newTestCoordinator(t, Options{HostSync: true})
	enqueue(t, st, "w-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	coord.Register(DefaultTag)

	assert.Eventually(t, func() bool {
		return len(endpoint.Delivered()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunReplaysOnOnlineEdge(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	endpoint := newScriptedEndpoint()
	source := connectivity.NewManualSource(connectivity.Offline)
	monitor := connectivity.NewMonitor(source, st)

	mctx, mcancel := context.WithCancel(context.Background())
	defer mcancel()
	go monitor.Run(mctx)

	coord := NewCoordinator(st, endpoint, monitor, Options{HostSync: true})
	enqueue(t, st, "w-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	// Nothing replays while offline.
	coord.Register(DefaultTag)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, endpoint.Delivered())

	source.Set(connectivity.Online)
	assert.Eventually(t, func() bool {
		return len(endpoint.Delivered()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunFallbackRetryTimerReplays(t *testing.T) {
	coord, st, endpoint, _ := newTestCoordinator(t, Options{
		HostSync:  false,
		BaseDelay: 20 * time.Millisecond,
		MaxDelay:  100 * time.Millisecond,
	})
	enqueue(t, st, "w-1", "w-2")
	endpoint.script("w-1", &api.NetworkError{Err: errors.New("timeout")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	// A single trigger: the first round stops at w-1's transient failure
	// and arms the retry timer, which drains the queue on its own.
	coord.Register(DefaultTag)

	assert.Eventually(t, func() bool {
		return len(endpoint.Delivered()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"w-1", "w-2"}, endpoint.Delivered())

	count, err := st.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReplayDuplicateFiringIsHarmless(t *testing.T) {
	coord, st, endpoint, _ := newTestCoordinator(t, Options{})
	enqueue(t, st, "w-1")

	ctx := context.Background()
	_, err := coord.Replay(ctx)
	require.NoError(t, err)
	_, err = coord.Replay(ctx)
	require.NoError(t, err)

	// The second round sees an empty queue; the key was delivered once.
	assert.Equal(t, []string{"w-1"}, endpoint.Delivered())
}
