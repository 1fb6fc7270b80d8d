package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tidewell/moorage/internal/store"
)

// NewQueueCommand creates the `moorage queue` command: inspect the
// durable write queue and the dead-letter table.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	var showDead bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show queued writes awaiting replay",
		Long: `Queue lists the writes captured while offline, oldest first. With
--dead it lists dead letters instead: writes the server rejected or
that ran out of retries, kept for inspection rather than replayed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			ctx := cmd.Context()

			if showDead {
				letters, err := st.ListDeadLetters(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "listing dead letters", err)
				}
				return formatter.Emit(deadLetterRows(letters), func(w io.Writer) {
					if len(letters) == 0 {
						fmt.Fprintln(w, "no dead letters")
						return
					}
					for _, l := range letters {
						fmt.Fprintf(w, "%s  %-20s  retries=%d  dead=%s  %s\n",
							l.ID, l.Operation, l.RetryCount,
							l.DeadAt.Format(time.RFC3339), l.Reason)
					}
				})
			}

			writes, err := st.ListPending(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "listing queue", err)
			}
			return formatter.Emit(pendingRows(writes), func(w io.Writer) {
				if len(writes) == 0 {
					fmt.Fprintln(w, "queue is empty")
					return
				}
				for _, p := range writes {
					line := fmt.Sprintf("%s  %-20s  queued=%s  retries=%d",
						p.ID, p.Operation, p.CreatedAt.Format(time.RFC3339), p.RetryCount)
					if p.LastError != "" {
						line += "  last_error=" + p.LastError
					}
					fmt.Fprintln(w, line)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&showDead, "dead", false, "list dead letters instead of the queue")
	return cmd
}

type pendingRow struct {
	ID         string `json:"id"`
	Operation  string `json:"operation"`
	CreatedAt  string `json:"created_at"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}

func pendingRows(writes []store.PendingWrite) []pendingRow {
	rows := make([]pendingRow, 0, len(writes))
	for _, p := range writes {
		rows = append(rows, pendingRow{
			ID:         p.ID,
			Operation:  p.Operation,
			CreatedAt:  p.CreatedAt.Format(time.RFC3339),
			RetryCount: p.RetryCount,
			LastError:  p.LastError,
		})
	}
	return rows
}

type deadLetterRow struct {
	ID         string `json:"id"`
	Operation  string `json:"operation"`
	CreatedAt  string `json:"created_at"`
	DeadAt     string `json:"dead_at"`
	RetryCount int    `json:"retry_count"`
	Reason     string `json:"reason"`
}

func deadLetterRows(letters []store.DeadLetter) []deadLetterRow {
	rows := make([]deadLetterRow, 0, len(letters))
	for _, l := range letters {
		rows = append(rows, deadLetterRow{
			ID:         l.ID,
			Operation:  l.Operation,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
			DeadAt:     l.DeadAt.Format(time.RFC3339),
			RetryCount: l.RetryCount,
			Reason:     l.Reason,
		})
	}
	return rows
}
