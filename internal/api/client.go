// Package api is the HTTP client for the booking-manager service.
//
// It carries the error classification the rest of the system depends on:
// a 4xx is RejectedError (permanent, dead-letter), anything
// transport-level or 5xx is NetworkError (transient, keep queued). Both
// the write router's optimistic direct path and the sync coordinator's
// replay go through SubmitBooking so the two paths cannot drift.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// IdempotencyKeyHeader carries the PendingWrite id so the server can
// collapse duplicate submissions of the same logical action.
const IdempotencyKeyHeader = "Idempotency-Key"

// RejectedError is a 4xx from the server: the payload is permanently
// invalid and retrying is pointless.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by server (%d): %s", e.Status, e.Body)
}

// IsRejected reports whether err is a permanent server rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// NetworkError is a transient delivery failure: timeout, connection
// reset, or a 5xx. The write stays queued and is never surfaced to the
// user synchronously.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a transient delivery failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Options configures the client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// Client talks to the booking-manager REST endpoint.
type Client struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewClient creates a booking API client.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		baseURL:   baseURL,
		client:    client,
		userAgent: strings.TrimSpace(opts.UserAgent),
	}
}

// HealthURL is the endpoint the connectivity probe polls.
func (c *Client) HealthURL() string {
	return c.baseURL + "/healthz"
}

// SubmitBooking POSTs a booking payload with its idempotency key.
// The server must answer 2xx for success, including for a duplicate
// submission of the same key.
func (c *Client) SubmitBooking(ctx context.Context, operation string, payload json.RawMessage, idempotencyKey string) error {
	path := "/v1/bookings"
	if operation != "" && operation != "create-booking" {
		path = "/v1/bookings/" + operation
	}
	return c.post(ctx, path, payload, idempotencyKey)
}

// Booking is one server-side booking record. Raw preserves the full
// document for snapshot caching; ID is extracted for keying.
type Booking struct {
	ID  string
	Raw json.RawMessage
}

// FetchBookings retrieves the user's bookings for read-through caching.
func (c *Client) FetchBookings(ctx context.Context) ([]Booking, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/bookings", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	if err := c.classify(resp); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}

	var docs []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("decode bookings: %w", err)}
	}
	bookings := make([]Booking, 0, len(docs))
	for _, doc := range docs {
		var keyed struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(doc, &keyed); err != nil || keyed.ID == "" {
			continue
		}
		bookings = append(bookings, Booking{ID: keyed.ID, Raw: doc})
	}
	return bookings, nil
}

// SaveSubscription mirrors a push subscription server-side, keyed by user.
func (c *Client) SaveSubscription(ctx context.Context, userID string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	return c.post(ctx, "/v1/push/subscriptions/"+userID, body, "")
}

// DeleteSubscription removes the server-side subscription mirror.
// A 404 counts as success ("already unsubscribed").
func (c *Client) DeleteSubscription(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/push/subscriptions/"+userID, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return c.classify(resp)
}

func (c *Client) post(ctx context.Context, path string, body json.RawMessage, idempotencyKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer drain(resp)
	return c.classify(resp)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.client.Do(req)
}

// classify maps a response status onto the error taxonomy.
func (c *Client) classify(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RejectedError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	default:
		return &NetworkError{Err: fmt.Errorf("server returned %d", resp.StatusCode)}
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
