package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewell/moorage/internal/store"
	"github.com/tidewell/moorage/internal/testutil"
)

func enqueueWrites(t *testing.T, cfg string, ids ...string) {
	t.Helper()
	seedStore(t, cfg, func(st *store.Store) {
		for i, id := range ids {
			require.NoError(t, st.AddPending(context.Background(), store.PendingWriteInput{
				ID:        id,
				Operation: "create-booking",
				Payload:   json.RawMessage(`{"charter_id":"c-7"}`),
				CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second),
			}))
		}
	})
}

func TestReplayDeliversQueue(t *testing.T) {
	srv := testutil.NewBookingServer()
	t.Cleanup(srv.Close)
	cfg := writeTestConfig(t, srv.URL)
	enqueueWrites(t, cfg, "w-1", "w-2")

	out, err := execute("--config", cfg, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "delivered 2, dead-lettered 0, remaining 0")
	assert.Equal(t, []string{"w-1", "w-2"}, srv.Keys())

	seedStore(t, cfg, func(st *store.Store) {
		writes, err := st.ListPending(context.Background())
		require.NoError(t, err)
		assert.Empty(t, writes)
	})
}

func TestReplayEmptyQueue(t *testing.T) {
	srv := testutil.NewBookingServer()
	t.Cleanup(srv.Close)
	cfg := writeTestConfig(t, srv.URL)

	out, err := execute("--config", cfg, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "delivered 0, dead-lettered 0, remaining 0")
}

func TestReplayStopsOnTransientFailure(t *testing.T) {
	srv := testutil.NewBookingServer()
	t.Cleanup(srv.Close)
	srv.Script(http.StatusOK, http.StatusServiceUnavailable)
	cfg := writeTestConfig(t, srv.URL)
	enqueueWrites(t, cfg, "w-1", "w-2", "w-3")

	out, err := execute("--config", cfg, "replay")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "delivered 1, dead-lettered 0, remaining 2")
	assert.Contains(t, out, "stopped early")

	// The failed write stays at the head for the next round.
	seedStore(t, cfg, func(st *store.Store) {
		writes, listErr := st.ListPending(context.Background())
		require.NoError(t, listErr)
		require.Len(t, writes, 2)
		assert.Equal(t, "w-2", writes[0].ID)
		assert.Equal(t, 1, writes[0].RetryCount)
	})
}

func TestReplayDeadLettersRejection(t *testing.T) {
	srv := testutil.NewBookingServer()
	t.Cleanup(srv.Close)
	srv.Script(http.StatusUnprocessableEntity)
	cfg := writeTestConfig(t, srv.URL)
	enqueueWrites(t, cfg, "w-1", "w-2")

	out, err := execute("--config", cfg, "replay")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "delivered 1, dead-lettered 1, remaining 0")

	seedStore(t, cfg, func(st *store.Store) {
		letters, listErr := st.ListDeadLetters(context.Background())
		require.NoError(t, listErr)
		require.Len(t, letters, 1)
		assert.Equal(t, "w-1", letters[0].ID)
	})
}

func TestReplayJSON(t *testing.T) {
	srv := testutil.NewBookingServer()
	t.Cleanup(srv.Close)
	cfg := writeTestConfig(t, srv.URL)
	enqueueWrites(t, cfg, "w-1")

	out, err := execute("--config", cfg, "--format", "json", "replay")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Delivered int `json:"delivered"`
			Remaining int `json:"remaining"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Delivered)
	assert.Equal(t, 0, resp.Data.Remaining)
}
