package store

import (
	"context"
	"testing"
)

func testSubscription(userID string) Subscription {
	return Subscription{
		UserID:   userID,
		Endpoint: "https://push.example/ch/" + userID,
		P256DH:   "BPubKey",
		Auth:     "authsecret",
	}
}

func TestSaveSubscription_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSubscription(ctx, testSubscription("u-1")); err != nil {
		t.Fatalf("SaveSubscription() failed: %v", err)
	}

	sub, err := s.GetSubscription(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetSubscription() failed: %v", err)
	}
	if sub.Endpoint != "https://push.example/ch/u-1" {
		t.Errorf("Endpoint = %q", sub.Endpoint)
	}
	if sub.P256DH != "BPubKey" || sub.Auth != "authsecret" {
		t.Errorf("keys not preserved: %+v", sub)
	}
	if sub.CreatedAt.IsZero() {
		t.Error("CreatedAt was not defaulted")
	}
}

func TestSaveSubscription_Upsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSubscription(ctx, testSubscription("u-1")); err != nil {
		t.Fatalf("SaveSubscription() failed: %v", err)
	}
	replaced := testSubscription("u-1")
	replaced.Endpoint = "https://push.example/ch/replacement"
	if err := s.SaveSubscription(ctx, replaced); err != nil {
		t.Fatalf("second SaveSubscription() failed: %v", err)
	}

	sub, err := s.GetSubscription(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetSubscription() failed: %v", err)
	}
	if sub.Endpoint != "https://push.example/ch/replacement" {
		t.Errorf("Endpoint = %q, want the replacement", sub.Endpoint)
	}

	subs, err := s.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions() failed: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("got %d subscriptions, want 1 (upsert, not append)", len(subs))
	}
}

func TestDeleteSubscription_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveSubscription(ctx, testSubscription("u-1")); err != nil {
		t.Fatalf("SaveSubscription() failed: %v", err)
	}
	if err := s.DeleteSubscription(ctx, "u-1"); err != nil {
		t.Fatalf("DeleteSubscription() failed: %v", err)
	}
	if err := s.DeleteSubscription(ctx, "u-1"); err != nil {
		t.Fatalf("second DeleteSubscription() failed: %v", err)
	}

	if _, err := s.GetSubscription(ctx, "u-1"); !IsNotFound(err) {
		t.Errorf("GetSubscription() after delete: %v, want not-found", err)
	}
}

func TestListSubscriptions_Multiple(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"u-2", "u-1"} {
		if err := s.SaveSubscription(ctx, testSubscription(id)); err != nil {
			t.Fatalf("SaveSubscription(%s) failed: %v", id, err)
		}
	}

	subs, err := s.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions() failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d subscriptions, want 2", len(subs))
	}
	if subs[0].UserID != "u-1" || subs[1].UserID != "u-2" {
		t.Errorf("order = [%s %s], want sorted by user", subs[0].UserID, subs[1].UserID)
	}
}
