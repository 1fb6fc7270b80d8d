package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tidewell/moorage/internal/api"
	"github.com/tidewell/moorage/internal/connectivity"
	"github.com/tidewell/moorage/internal/syncer"
)

// NewReplayCommand creates the `moorage replay` command: one manual
// flush of the queue, for operators who do not want to wait for the
// daemon's next trigger.
func NewReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Replay queued writes against the server now",
		Long: `Replay walks the queue oldest-first and submits each write with its
original idempotency key, so running it alongside the daemon cannot
produce duplicate bookings. The round stops at the first transient
failure to preserve ordering; rejected writes are dead-lettered.

Exits 1 when writes remain queued or were dead-lettered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			client := api.NewClient(api.Options{
				BaseURL:   cfg.API.BaseURL,
				UserAgent: cfg.API.UserAgent,
			})

			// A manual flush assumes the operator knows the network is
			// there; no probe, the submit errors speak for themselves.
			monitor := connectivity.NewMonitor(connectivity.NewManualSource(connectivity.Online), st)

			coord := syncer.NewCoordinator(st, client, monitor, syncer.Options{
				RetryCeiling: cfg.Sync.RetryCeiling,
			})
			report, err := coord.Replay(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "replaying queue", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			if emitErr := formatter.Emit(report, func(w io.Writer) {
				fmt.Fprintf(w, "delivered %d, dead-lettered %d, remaining %d\n",
					report.Delivered, report.DeadLettered, report.Remaining)
				if report.Stopped {
					fmt.Fprintln(w, "stopped early on a transient failure")
				}
			}); emitErr != nil {
				return emitErr
			}

			if report.Remaining > 0 || report.DeadLettered > 0 {
				return &ExitError{Code: ExitFailure, Message: "queue not fully delivered"}
			}
			return nil
		},
	}
}
