package store

import (
	"context"
	"encoding/json"
	"testing"
)

func TestPutBooking_Upsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutBooking(ctx, "b-1", json.RawMessage(`{"status":"pending"}`)); err != nil {
		t.Fatalf("PutBooking() failed: %v", err)
	}
	if err := s.PutBooking(ctx, "b-1", json.RawMessage(`{"status":"confirmed"}`)); err != nil {
		t.Fatalf("second PutBooking() failed: %v", err)
	}

	b, err := s.GetBooking(ctx, "b-1")
	if err != nil {
		t.Fatalf("GetBooking() failed: %v", err)
	}
	if string(b.Snapshot) != `{"status":"confirmed"}` {
		t.Errorf("Snapshot = %s, want the updated value", b.Snapshot)
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetBooking(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound() = false for: %v", err)
	}
}

func TestListBookings_Empty(t *testing.T) {
	s := openTestStore(t)

	snaps, err := s.ListBookings(context.Background())
	if err != nil {
		t.Fatalf("ListBookings() failed: %v", err)
	}
	if snaps == nil || len(snaps) != 0 {
		t.Errorf("got %v, want empty slice", snaps)
	}
}

func TestListBookings_ReturnsAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b-1", "b-2", "b-3"} {
		if err := s.PutBooking(ctx, id, json.RawMessage(`{}`)); err != nil {
			t.Fatalf("PutBooking(%s) failed: %v", id, err)
		}
	}

	snaps, err := s.ListBookings(ctx)
	if err != nil {
		t.Fatalf("ListBookings() failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Errorf("got %d snapshots, want 3", len(snaps))
	}
}
