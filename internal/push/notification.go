package push

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed payload_schema.json
var payloadSchemaJSON []byte

// Payload is the provider-delivered push wire format.
type Payload struct {
	Title              string   `json:"title"`
	Message            string   `json:"message"`
	Icon               string   `json:"icon,omitempty"`
	Image              string   `json:"image,omitempty"`
	Tag                string   `json:"tag,omitempty"`
	RequireInteraction bool     `json:"requireInteraction,omitempty"`
	Actions            []Action `json:"actions,omitempty"`
	Data               Data     `json:"data,omitempty"`
}

// Action is one notification action button.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Data is the app-defined portion of a payload.
type Data struct {
	URL          string `json:"url,omitempty"`
	TournamentID string `json:"tournament_id,omitempty"`
	UpdateID     string `json:"update_id,omitempty"`
}

// Notification is what gets displayed: the payload's title becomes the
// notification title, message becomes the body.
type Notification struct {
	ID                 string
	Title              string
	Body               string
	Icon               string
	Image              string
	Tag                string
	RequireInteraction bool
	Actions            []Action
	Data               Data
}

// Notifier displays notifications to the user.
type Notifier interface {
	Show(n Notification) error
	Close(id string) error
}

// Window is one open app window the click router can target.
type Window interface {
	URL() string
	Focus() error
}

// WindowManager enumerates and opens app windows. Injected explicitly so
// the router is testable outside a real display host.
type WindowManager interface {
	Windows() []Window
	Open(url string) error
}

// Router turns inbound push events into notifications and notification
// clicks into window focus/navigation.
type Router struct {
	notifier Notifier
	windows  WindowManager
	schema   *jsonschema.Schema

	// displayed remembers the payload behind each shown notification so
	// a click can recover its target URL. Pushes arrive on the listener
	// goroutine while clicks come from the host, so access is locked.
	mu        sync.Mutex
	displayed map[string]Payload
}

// NewRouter creates a notification router. Panics only on a broken
// embedded schema, which is a build defect.
func NewRouter(notifier Notifier, windows WindowManager) *Router {
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payloadSchemaJSON))
	if err != nil {
		panic("push: embedded payload schema unreadable: " + err.Error())
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("push-payload.json", schemaDoc); err != nil {
		panic("push: embedded payload schema invalid: " + err.Error())
	}
	schema, err := compiler.Compile("push-payload.json")
	if err != nil {
		panic("push: embedded payload schema does not compile: " + err.Error())
	}
	return &Router{
		notifier:  notifier,
		windows:   windows,
		schema:    schema,
		displayed: make(map[string]Payload),
	}
}

// HandlePush parses and displays one inbound push event. Malformed
// payloads are dropped with a warning - a bad push must never take the
// worker down. Returns the displayed notification id, or "" if dropped.
func (r *Router) HandlePush(raw []byte) string {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		slog.Warn("push payload is not JSON, dropping", "error", err)
		return ""
	}
	if err := r.schema.Validate(doc); err != nil {
		slog.Warn("push payload failed validation, dropping", "error", err)
		return ""
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("push payload decode failed, dropping", "error", err)
		return ""
	}

	id := p.Tag
	if id == "" {
		id = notificationID(raw)
	}
	n := Notification{
		ID:                 id,
		Title:              p.Title,
		Body:               p.Message,
		Icon:               p.Icon,
		Image:              p.Image,
		Tag:                p.Tag,
		RequireInteraction: p.RequireInteraction,
		Actions:            p.Actions,
		Data:               p.Data,
	}
	if err := r.notifier.Show(n); err != nil {
		slog.Warn("notification display failed", "id", id, "error", err)
		return ""
	}
	r.mu.Lock()
	r.displayed[id] = p
	r.mu.Unlock()
	slog.Debug("notification shown", "id", id, "title", p.Title)
	return id
}

// HandleClick routes a notification click: close the notification, focus
// an open window already at the target URL, or open a new one there.
// The target defaults to "/" when the payload carried no url.
func (r *Router) HandleClick(notificationID string) error {
	if err := r.notifier.Close(notificationID); err != nil {
		slog.Debug("notification close failed", "id", notificationID, "error", err)
	}

	target := "/"
	r.mu.Lock()
	if p, ok := r.displayed[notificationID]; ok {
		if p.Data.URL != "" {
			target = p.Data.URL
		}
		delete(r.displayed, notificationID)
	}
	r.mu.Unlock()

	for _, w := range r.windows.Windows() {
		if w.URL() == target {
			slog.Debug("focusing existing window", "url", target)
			return w.Focus()
		}
	}
	slog.Debug("opening new window", "url", target)
	return r.windows.Open(target)
}
