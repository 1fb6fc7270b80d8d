package push

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"nhooyr.io/websocket"
)

// notificationID derives a stable id for a payload without a tag.
func notificationID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

// Listener consumes the provider's push channel over a websocket and
// feeds each delivered payload into the notification router. It is the
// Go analog of the worker's push event handler: always on while the
// daemon runs, reconnecting with backoff when the channel drops.
type Listener struct {
	endpoint string
	router   *Router

	// reconnect pacing
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewListener creates a listener on the subscription's channel endpoint.
func NewListener(endpoint string, router *Router) *Listener {
	return &Listener{
		endpoint:  endpoint,
		router:    router,
		baseDelay: time.Second,
		maxDelay:  time.Minute,
	}
}

// Run consumes pushes until ctx is cancelled. Blocks; run in its own
// goroutine. Connection loss is routine (the host may be offline for
// long stretches) and only ever logged.
func (l *Listener) Run(ctx context.Context) error {
	delay := l.baseDelay
	for {
		start := time.Now()
		err := l.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > 30*time.Second {
			// The session was healthy; start the backoff over.
			delay = l.baseDelay
		}
		slog.Debug("push channel dropped, reconnecting", "error", err, "delay", delay.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > l.maxDelay {
			delay = l.maxDelay
		}
	}
}

// consume holds one websocket session, resetting nothing on entry so a
// healthy long-lived session keeps the backoff at base for the next
// drop.
func (l *Listener) consume(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, l.endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("push channel connected", "endpoint", l.endpoint)

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		l.router.HandlePush(raw)
	}
}
