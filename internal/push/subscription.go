// Package push handles the notification side of the worker: provider
// subscription lifecycle, the inbound push channel, and routing a
// displayed notification's click back into the app.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidewell/moorage/internal/store"
)

// Permission is the tri-state result of the notification prompt.
type Permission int

const (
	PermissionDefault Permission = iota // prompt dismissed, may re-prompt later
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "default"
	}
}

// ErrPermissionDenied means the user declined notifications. The manager
// never re-prompts on its own; the UI may ask again in a later session.
var ErrPermissionDenied = errors.New("notification permission denied")

// ErrPermissionDismissed means the prompt was dismissed without a
// decision. Subscription did not proceed, but a re-prompt is reasonable.
var ErrPermissionDismissed = errors.New("notification permission prompt dismissed")

// ErrUnsupported means the host has no push API; the feature is silently
// disabled rather than retried.
var ErrUnsupported = errors.New("push not supported by host")

// Prompter asks the user for notification permission.
type Prompter interface {
	RequestPermission(ctx context.Context) (Permission, error)
}

// Keys are the encryption keys minted with a provider subscription.
type Keys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// ProviderSubscription is a live registration with the push provider.
type ProviderSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// Provider is the push messaging service, treated as a black box.
type Provider interface {
	Subscribe(ctx context.Context, vapidPublicKey string) (ProviderSubscription, error)
	// Unsubscribe must tolerate an endpoint that is already gone.
	Unsubscribe(ctx context.Context, endpoint string) error
}

// SubscriptionSink persists the server-side mirror of subscriptions.
// Satisfied by api.Client.
type SubscriptionSink interface {
	SaveSubscription(ctx context.Context, userID string, record any) error
	DeleteSubscription(ctx context.Context, userID string) error
}

// Manager owns the subscription lifecycle. The local store row is the
// source of truth for "am I subscribed"; the server mirror is the source
// of truth for "who do I push to".
type Manager struct {
	store    *store.Store
	sink     SubscriptionSink
	provider Provider
	prompter Prompter
	vapidKey string
	enabled  bool
}

// NewManager creates a Manager. enabled comes from the startup
// capability probe; when false every call reports ErrUnsupported.
func NewManager(st *store.Store, sink SubscriptionSink, provider Provider, prompter Prompter, vapidKey string, enabled bool) *Manager {
	return &Manager{
		store:    st,
		sink:     sink,
		provider: provider,
		prompter: prompter,
		vapidKey: vapidKey,
		enabled:  enabled,
	}
}

// Subscribe registers this installation for pushes on behalf of userID.
//
// Requires an explicit permission grant; a decline fails with
// ErrPermissionDenied and is not retried here. On grant the provider
// subscription is created, mirrored server-side, and recorded locally -
// in that order, so a crash can only leave an orphan provider
// registration (harmless), never a local record the server doesn't know.
func (m *Manager) Subscribe(ctx context.Context, userID string) (ProviderSubscription, error) {
	if !m.enabled {
		return ProviderSubscription{}, ErrUnsupported
	}

	perm, err := m.prompter.RequestPermission(ctx)
	if err != nil {
		return ProviderSubscription{}, fmt.Errorf("permission prompt: %w", err)
	}
	switch perm {
	case PermissionDenied:
		return ProviderSubscription{}, ErrPermissionDenied
	case PermissionDefault:
		return ProviderSubscription{}, ErrPermissionDismissed
	}

	sub, err := m.provider.Subscribe(ctx, m.vapidKey)
	if err != nil {
		return ProviderSubscription{}, fmt.Errorf("provider subscribe: %w", err)
	}

	if err := m.sink.SaveSubscription(ctx, userID, sub); err != nil {
		return ProviderSubscription{}, fmt.Errorf("persist subscription: %w", err)
	}

	if err := m.store.SaveSubscription(ctx, store.Subscription{
		UserID:   userID,
		Endpoint: sub.Endpoint,
		P256DH:   sub.Keys.P256DH,
		Auth:     sub.Keys.Auth,
	}); err != nil {
		return ProviderSubscription{}, err
	}

	slog.Info("push subscription established", "user", userID, "endpoint", sub.Endpoint)
	return sub, nil
}

// Unsubscribe tears the registration down. Symmetric to Subscribe and
// tolerant of "already unsubscribed" at every layer.
func (m *Manager) Unsubscribe(ctx context.Context, userID string) error {
	if !m.enabled {
		return ErrUnsupported
	}

	sub, err := m.store.GetSubscription(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return err
	}

	if err := m.provider.Unsubscribe(ctx, sub.Endpoint); err != nil {
		slog.Warn("provider unsubscribe failed, continuing", "error", err)
	}
	if err := m.sink.DeleteSubscription(ctx, userID); err != nil {
		return fmt.Errorf("remove server subscription: %w", err)
	}
	if err := m.store.DeleteSubscription(ctx, userID); err != nil {
		return err
	}

	slog.Info("push subscription removed", "user", userID)
	return nil
}

// Subscribed reports whether a local subscription record exists.
func (m *Manager) Subscribed(ctx context.Context, userID string) (bool, error) {
	_, err := m.store.GetSubscription(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// StaticPrompter returns a fixed permission; used by tests and headless
// deployments where the decision was made out of band.
type StaticPrompter Permission

// RequestPermission implements Prompter.
func (p StaticPrompter) RequestPermission(context.Context) (Permission, error) {
	return Permission(p), nil
}
