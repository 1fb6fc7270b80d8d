package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewell/moorage/internal/store"
)

// seedStore opens the database the descriptor names, runs fn, and
// closes it again so the command under test gets a cold open.
func seedStore(t *testing.T, configPath string, fn func(st *store.Store)) {
	t.Helper()
	st, err := store.Open(filepath.Join(filepath.Dir(configPath), "moorage.db"))
	require.NoError(t, err)
	fn(st)
	require.NoError(t, st.Close())
}

func TestQueueEmpty(t *testing.T) {
	cfg := writeTestConfig(t, "https://api.example.com")

	out, err := execute("--config", cfg, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "queue is empty")
}

func TestQueueListsPendingWrites(t *testing.T) {
	cfg := writeTestConfig(t, "https://api.example.com")
	seedStore(t, cfg, func(st *store.Store) {
		ctx := context.Background()
		require.NoError(t, st.AddPending(ctx, store.PendingWriteInput{
			ID:        "w-1",
			Operation: "create-booking",
			Payload:   json.RawMessage(`{"charter_id":"c-7"}`),
			CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		}))
	})

	out, err := execute("--config", cfg, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "w-1")
	assert.Contains(t, out, "create-booking")
	assert.Contains(t, out, "2026-08-01T12:00:00Z")
}

func TestQueueJSON(t *testing.T) {
	cfg := writeTestConfig(t, "https://api.example.com")
	seedStore(t, cfg, func(st *store.Store) {
		ctx := context.Background()
		require.NoError(t, st.AddPending(ctx, store.PendingWriteInput{
			ID:        "w-1",
			Operation: "create-booking",
			Payload:   json.RawMessage(`{}`),
			CreatedAt: time.Now().UTC(),
		}))
		require.NoError(t, st.AddPending(ctx, store.PendingWriteInput{
			ID:        "w-2",
			Operation: "cancel-booking",
			Payload:   json.RawMessage(`{}`),
			CreatedAt: time.Now().UTC(),
		}))
	})

	out, err := execute("--config", cfg, "--format", "json", "queue")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ID        string `json:"id"`
			Operation string `json:"operation"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "w-1", resp.Data[0].ID)
	assert.Equal(t, "w-2", resp.Data[1].ID)
}

func TestQueueDeadLetters(t *testing.T) {
	cfg := writeTestConfig(t, "https://api.example.com")
	seedStore(t, cfg, func(st *store.Store) {
		require.NoError(t, st.RecordDeadLetter(context.Background(), store.PendingWriteInput{
			ID:        "w-9",
			Operation: "create-booking",
			Payload:   json.RawMessage(`{}`),
			CreatedAt: time.Now().UTC(),
		}, "rejected by server (status 422)"))
	})

	out, err := execute("--config", cfg, "queue", "--dead")
	require.NoError(t, err)
	assert.Contains(t, out, "w-9")
	assert.Contains(t, out, "rejected by server")

	empty, err := execute("--config", cfg, "queue")
	require.NoError(t, err)
	assert.Contains(t, empty, "queue is empty")
}

func TestQueueNoDeadLetters(t *testing.T) {
	cfg := writeTestConfig(t, "https://api.example.com")

	out, err := execute("--config", cfg, "queue", "--dead")
	require.NoError(t, err)
	assert.Contains(t, out, "no dead letters")
}
