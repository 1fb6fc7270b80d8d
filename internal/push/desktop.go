package push

import (
	"log/slog"
	"os/exec"
	"sync"
)

// LogNotifier writes notifications to the structured log. The default
// for headless runs and the fallback when no display integration exists.
type LogNotifier struct{}

// Show implements Notifier.
func (LogNotifier) Show(n Notification) error {
	slog.Info("notification",
		"id", n.ID,
		"title", n.Title,
		"body", n.Body,
		"url", n.Data.URL,
	)
	return nil
}

// Close implements Notifier.
func (LogNotifier) Close(id string) error { return nil }

// BrowserWindows opens notification targets in the system browser and
// tracks what it opened, approximating the host's window enumeration for
// a desktop daemon. baseURL prefixes relative targets like "/tournaments/42".
type BrowserWindows struct {
	baseURL string

	mu   sync.Mutex
	open []string
}

// NewBrowserWindows creates a window manager rooted at baseURL.
func NewBrowserWindows(baseURL string) *BrowserWindows {
	return &BrowserWindows{baseURL: baseURL}
}

// Windows implements WindowManager.
func (b *BrowserWindows) Windows() []Window {
	b.mu.Lock()
	defer b.mu.Unlock()
	windows := make([]Window, len(b.open))
	for i, url := range b.open {
		windows[i] = &browserWindow{url: url}
	}
	return windows
}

// Open implements WindowManager.
func (b *BrowserWindows) Open(url string) error {
	full := url
	if len(url) > 0 && url[0] == '/' {
		full = b.baseURL + url
	}
	// Best effort; xdg-open is absent on non-Linux hosts and in CI.
	if err := exec.Command("xdg-open", full).Start(); err != nil {
		slog.Debug("browser open failed", "url", full, "error", err)
	}
	b.mu.Lock()
	b.open = append(b.open, url)
	b.mu.Unlock()
	return nil
}

type browserWindow struct {
	url string
}

func (w *browserWindow) URL() string { return w.url }

func (w *browserWindow) Focus() error {
	// A desktop daemon cannot raise a browser tab; opening the URL again
	// lets the browser decide to focus the existing one.
	return exec.Command("xdg-open", w.url).Start()
}
