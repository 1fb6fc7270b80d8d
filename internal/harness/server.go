package harness

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/tidewell/moorage/internal/api"
)

// Delivery records one server-acknowledged submission.
type Delivery struct {
	Operation string          `json:"operation"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
}

// scriptedServer stands in for the booking server. Responses come from
// a script fed by scenario steps; an exhausted script acknowledges
// everything. Every submission attempt is recorded, acknowledged or
// not, so assertions can see retries as well as deliveries.
type scriptedServer struct {
	mu        sync.Mutex
	script    []string
	attempts  []Delivery
	delivered []Delivery
}

func newScriptedServer() *scriptedServer {
	return &scriptedServer{}
}

// push appends responses to the script.
func (s *scriptedServer) push(responses []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, responses...)
}

// SubmitBooking implements the router and syncer endpoint interfaces.
// Idempotency: a key that was already acknowledged is acknowledged
// again without being recorded as a second delivery, matching a real
// server's dedup behavior.
func (s *scriptedServer) SubmitBooking(_ context.Context, operation string, payload json.RawMessage, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := Delivery{Operation: operation, Key: idempotencyKey, Payload: payload}
	s.attempts = append(s.attempts, d)

	for _, prev := range s.delivered {
		if prev.Key == idempotencyKey {
			return nil
		}
	}

	next := RespondOK
	if len(s.script) > 0 {
		next = s.script[0]
		s.script = s.script[1:]
	}

	switch next {
	case RespondReject:
		return &api.RejectedError{Status: 422, Body: "scripted rejection"}
	case RespondError:
		return &api.NetworkError{Err: errors.New("scripted network failure")}
	default:
		s.delivered = append(s.delivered, d)
		return nil
	}
}

// FetchBookings implements the router endpoint interface: acknowledged
// submissions read back as bookings keyed by their idempotency key.
func (s *scriptedServer) FetchBookings(context.Context) ([]api.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookings := make([]api.Booking, 0, len(s.delivered))
	for _, d := range s.delivered {
		bookings = append(bookings, api.Booking{ID: d.Key, Raw: d.Payload})
	}
	return bookings, nil
}

// Delivered returns the acknowledged submissions in order. Never nil,
// so an empty list serializes as [] in golden files.
func (s *scriptedServer) Delivered() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery{}, s.delivered...)
}

// Attempts returns every submission attempt, including failed ones.
func (s *scriptedServer) Attempts() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery{}, s.attempts...)
}
