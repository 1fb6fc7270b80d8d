package harness

import (
	"sync"

	"github.com/tidewell/moorage/internal/push"
)

// captureNotifier records shown and closed notification ids.
type captureNotifier struct {
	mu     sync.Mutex
	shown  []string
	closed []string
}

func (c *captureNotifier) Show(n push.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shown = append(c.shown, n.ID)
	return nil
}

func (c *captureNotifier) Close(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, id)
	return nil
}

// Shown returns displayed notification ids in display order.
func (c *captureNotifier) Shown() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.shown...)
}

// captureWindows is a WindowManager that records what the click router
// asked for. Windows opened through it become focusable targets, so a
// second click on the same target exercises the focus path.
type captureWindows struct {
	mu      sync.Mutex
	open    []*captureWindow
	last    string
	focused []string
}

type captureWindow struct {
	url    string
	parent *captureWindows
}

func (w *captureWindow) URL() string { return w.url }

func (w *captureWindow) Focus() error {
	w.parent.mu.Lock()
	defer w.parent.mu.Unlock()
	w.parent.focused = append(w.parent.focused, w.url)
	w.parent.last = w.url
	return nil
}

func (c *captureWindows) Windows() []push.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	windows := make([]push.Window, len(c.open))
	for i, w := range c.open {
		windows[i] = w
	}
	return windows
}

func (c *captureWindows) Open(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = append(c.open, &captureWindow{url: url, parent: c})
	c.last = url
	return nil
}

// LastTarget returns the url of the most recent open or focus.
func (c *captureWindows) LastTarget() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
