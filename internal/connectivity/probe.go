package connectivity

import (
	"context"
	"net/http"
	"time"
)

// ProbeSource derives reachability by periodically issuing a HEAD request
// against the API health endpoint. Any response at all counts as Online;
// only transport-level failure counts as Offline (a 5xx server is still
// reachable, and the write router handles its errors separately).
type ProbeSource struct {
	url      string
	interval time.Duration
	client   *http.Client
	ch       chan State
}

// NewProbeSource creates a probe against healthURL, checking every
// interval. A zero interval defaults to 15 seconds.
func NewProbeSource(healthURL string, interval time.Duration, client *http.Client) *ProbeSource {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &ProbeSource{
		url:      healthURL,
		interval: interval,
		client:   client,
		ch:       make(chan State, 1),
	}
}

// Current implements EventSource with a single synchronous probe.
func (p *ProbeSource) Current(ctx context.Context) State {
	return p.check(ctx)
}

// Events implements EventSource.
func (p *ProbeSource) Events() <-chan State {
	return p.ch
}

// Run probes until ctx is cancelled. Blocks; run in its own goroutine.
func (p *ProbeSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			state := p.check(ctx)
			// Coalesce: the monitor only cares about the latest reading.
			select {
			case p.ch <- state:
			default:
				select {
				case <-p.ch:
				default:
				}
				p.ch <- state
			}
		}
	}
}

func (p *ProbeSource) check(ctx context.Context) State {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return Offline
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Offline
	}
	resp.Body.Close()
	return Online
}
