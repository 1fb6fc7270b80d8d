package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader re-reads the deployment descriptor and reports the current
// build version plus asset manifest. Wired to the config loader by the
// daemon.
type Reloader func() (version string, manifest []string, err error)

// Watch observes the config file for new deployments and rolls the cache
// forward: when the build version changes, the new generation is
// installed and activated (which garbage-collects the old one). This is
// the Go analog of a new worker version taking over.
//
// Blocks until ctx is cancelled; run in its own goroutine.
func Watch(ctx context.Context, proxy *Proxy, configPath string, reload Reloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and deploy tools
	// replace files by rename, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		return err
	}
	target := filepath.Clean(configPath)

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Deploys write in bursts; settle before reloading.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(250 * time.Millisecond)
			debounceC = debounce.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("cache watcher error", "error", err)

		case <-debounceC:
			debounce = nil
			debounceC = nil
			rollForward(ctx, proxy, reload)
		}
	}
}

func rollForward(ctx context.Context, proxy *Proxy, reload Reloader) {
	version, manifest, err := reload()
	if err != nil {
		slog.Warn("deployment descriptor reload failed", "error", err)
		return
	}
	if version == proxy.Version() {
		return
	}

	slog.Info("new build version detected", "version", version)
	proxy.SetVersion(version, manifest)
	if err := proxy.Install(ctx); err != nil {
		// Keep serving the previous generation; never activate a
		// partial cache.
		slog.Error("cache install for new version failed", "version", version, "error", err)
		return
	}
	if err := proxy.Activate(); err != nil {
		slog.Error("cache activate for new version failed", "version", version, "error", err)
	}
}
