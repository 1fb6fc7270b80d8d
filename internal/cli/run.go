package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tidewell/moorage/internal/api"
	"github.com/tidewell/moorage/internal/cache"
	"github.com/tidewell/moorage/internal/capability"
	"github.com/tidewell/moorage/internal/config"
	"github.com/tidewell/moorage/internal/connectivity"
	"github.com/tidewell/moorage/internal/push"
	"github.com/tidewell/moorage/internal/store"
	"github.com/tidewell/moorage/internal/syncer"
)

// NewRunCommand creates the `moorage run` command: the long-lived
// daemon that keeps the queue draining, the asset cache current, and
// the push channel attached.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the offline durability daemon",
		Long: `Run starts the background half of moorage: the connectivity monitor,
the sync coordinator that replays queued writes, the versioned asset
cache with its deployment watcher, and a listener on each registered
push channel. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
}

func runDaemon(ctx context.Context, opts *RootOptions) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening store", err)
	}
	defer st.Close()

	client := api.NewClient(api.Options{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.API.UserAgent,
	})

	probe := connectivity.NewProbeSource(client.HealthURL(), cfg.Sync.ProbeInterval(), nil)
	monitor := connectivity.NewMonitor(probe, st)

	coord := syncer.NewCoordinator(st, client, monitor, syncer.Options{
		RetryCeiling: cfg.Sync.RetryCeiling,
		BaseDelay:    cfg.Sync.BaseDelay(),
		MaxDelay:     cfg.Sync.MaxDelay(),
		HostSync:     true,
	})

	provider := push.NewHTTPProvider(cfg.Push.ProviderURL, nil)
	notifier := push.LogNotifier{}
	caps := capability.Probe(coord, provider, notifier)
	slog.Info("host capabilities",
		"background_sync", caps.BackgroundSync,
		"push", caps.Push,
		"notifications", caps.Notifications)

	proxy := cache.NewProxy(cache.Options{
		Dir:      cfg.Cache.Dir,
		Version:  cfg.Cache.Version,
		Manifest: cfg.Cache.Manifest,
		Origin:   cfg.Cache.Origin,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the pending gauge before anything subscribes to it.
	if _, err := monitor.RefreshPendingCount(ctx); err != nil {
		slog.Warn("pending count unavailable at startup", "error", err)
	}

	// The cache is best effort: a failed install leaves asset fetches
	// on the network path, it never blocks the write queue.
	if err := proxy.Install(ctx); err != nil {
		slog.Error("asset cache install failed", "version", cfg.Cache.Version, "error", err)
	} else if err := proxy.Activate(); err != nil {
		slog.Error("asset cache activate failed", "version", cfg.Cache.Version, "error", err)
	}

	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				slog.Error("background task exited", "task", name, "error", err)
			}
		}()
	}

	background("probe", probe.Run)
	background("monitor", monitor.Run)
	background("syncer", coord.Run)
	background("cache-watch", func(ctx context.Context) error {
		return cache.Watch(ctx, proxy, opts.Config, func() (string, []string, error) {
			next, err := config.Load(opts.Config)
			if err != nil {
				return "", nil, err
			}
			return next.Cache.Version, next.Cache.Manifest, nil
		})
	})

	if caps.Push {
		subs, err := st.ListSubscriptions(ctx)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			router := push.NewRouter(notifier, push.NewBrowserWindows(cfg.API.BaseURL))
			listener := push.NewListener(sub.Endpoint, router)
			background(fmt.Sprintf("push[%s]", sub.UserID), listener.Run)
		}
	}

	// Anything queued from a previous session replays as soon as the
	// monitor sees the network, but schedule one pass explicitly so a
	// host that starts online does not wait for an edge.
	coord.Register(syncer.DefaultTag)

	slog.Info("moorage daemon started", "database", cfg.Database, "api", cfg.API.BaseURL)
	<-ctx.Done()
	slog.Info("shutting down")
	wg.Wait()
	return nil
}
