package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider talks to the push messaging provider's registration API.
// Subscribe mints a channel endpoint plus encryption keys; the listener
// then attaches to that endpoint for deliveries.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider client against baseURL.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

// Supported reports whether a provider endpoint was configured at all;
// consumed by the startup capability probe.
func (p *HTTPProvider) Supported() bool {
	return p != nil && p.baseURL != ""
}

// Subscribe implements Provider.
func (p *HTTPProvider) Subscribe(ctx context.Context, vapidPublicKey string) (ProviderSubscription, error) {
	body, err := json.Marshal(map[string]string{"applicationServerKey": vapidPublicKey})
	if err != nil {
		return ProviderSubscription{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/subscriptions", bytes.NewReader(body))
	if err != nil {
		return ProviderSubscription{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return ProviderSubscription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ProviderSubscription{}, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sub ProviderSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return ProviderSubscription{}, fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Endpoint == "" {
		return ProviderSubscription{}, fmt.Errorf("provider returned empty endpoint")
	}
	return sub, nil
}

// Unsubscribe implements Provider. A 404 or 410 means the registration
// is already gone, which is success.
func (p *HTTPProvider) Unsubscribe(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil
	default:
		return fmt.Errorf("provider returned %d", resp.StatusCode)
	}
}
