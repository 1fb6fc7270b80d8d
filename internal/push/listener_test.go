package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestListenerDeliversPushes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		conn.Write(ctx, websocket.MessageText, []byte(`{"title":"Dock notice","message":"Fuel dock closed","tag":"fuel"}`))
		conn.Write(ctx, websocket.MessageText, []byte(`not json`))
		conn.Write(ctx, websocket.MessageText, []byte(`{"title":"Dock notice","message":"Fuel dock reopened","tag":"fuel-2"}`))
		<-ctx.Done()
	}))
	t.Cleanup(srv.Close)

	notifier := &fakeNotifier{}
	router := NewRouter(notifier, &fakeWindows{})
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	l := NewListener(endpoint, router)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(notifier.Shown()) == 2
	}, 3*time.Second, 10*time.Millisecond)
	shown := notifier.Shown()
	assert.Equal(t, "fuel", shown[0].ID)
	assert.Equal(t, "fuel-2", shown[1].ID)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not stop on cancel")
	}
}

func TestListenerStopsWhenEndpointUnreachable(t *testing.T) {
	l := NewListener("ws://127.0.0.1:1/push", NewRouter(&fakeNotifier{}, &fakeWindows{}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := l.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
