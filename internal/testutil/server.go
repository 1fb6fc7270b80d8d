package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// RecordedRequest is one request the BookingServer saw.
type RecordedRequest struct {
	Method         string
	Path           string
	IdempotencyKey string
	Body           []byte
}

// BookingServer is a scripted stand-in for the booking-manager HTTP
// API. It records every request, serves a fixed booking list, and
// answers submissions with scripted statuses (200 once the script is
// exhausted), which is enough to exercise the client's full error
// classification.
type BookingServer struct {
	*httptest.Server

	mu       sync.Mutex
	statuses []int
	requests []RecordedRequest
	bookings []json.RawMessage
}

// NewBookingServer starts a BookingServer. Callers own Close.
func NewBookingServer() *BookingServer {
	s := &BookingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Script queues statuses for upcoming booking submissions, in order.
func (s *BookingServer) Script(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, statuses...)
}

// SetBookings sets the list served by GET /v1/bookings.
func (s *BookingServer) SetBookings(bookings ...json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = bookings
}

// Requests returns everything recorded so far.
func (s *BookingServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// Keys returns the idempotency keys of recorded submissions, in order.
func (s *BookingServer) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, r := range s.requests {
		if r.IdempotencyKey != "" {
			keys = append(keys, r.IdempotencyKey)
		}
	}
	return keys
}

func (s *BookingServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Body:           body,
	})

	switch {
	case r.URL.Path == "/healthz":
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet && r.URL.Path == "/v1/bookings":
		bookings := append([]json.RawMessage(nil), s.bookings...)
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(bookings); err != nil {
			return
		}

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/v1/bookings"):
		status := http.StatusOK
		if len(s.statuses) > 0 {
			status = s.statuses[0]
			s.statuses = s.statuses[1:]
		}
		s.mu.Unlock()
		if status >= 400 {
			http.Error(w, "scripted failure", status)
			return
		}
		w.WriteHeader(status)

	case strings.HasPrefix(r.URL.Path, "/v1/push/subscriptions/"):
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)

	default:
		s.mu.Unlock()
		http.NotFound(w, r)
	}
}
