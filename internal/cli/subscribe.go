package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidewell/moorage/internal/api"
	"github.com/tidewell/moorage/internal/capability"
	"github.com/tidewell/moorage/internal/config"
	"github.com/tidewell/moorage/internal/push"
	"github.com/tidewell/moorage/internal/store"
)

// NewSubscribeCommand creates the `moorage subscribe` command.
func NewSubscribeCommand(opts *RootOptions) *cobra.Command {
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "subscribe <user-id>",
		Short: "Subscribe a user to booking push notifications",
		Long: `Subscribe asks for notification permission, registers a push channel
with the provider, and mirrors the registration to the booking server.
The running daemon picks the new channel up on its next start.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			var prompter push.Prompter = &terminalPrompter{
				in:  cmd.InOrStdin(),
				out: cmd.OutOrStdout(),
			}
			if assumeYes {
				prompter = push.StaticPrompter(push.PermissionGranted)
			}

			mgr := newPushManager(cfg, st, prompter)
			sub, err := mgr.Subscribe(cmd.Context(), args[0])
			if err != nil {
				return subscribeExitError(err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Emit(sub, func(w io.Writer) {
				fmt.Fprintf(w, "subscribed %s at %s\n", args[0], sub.Endpoint)
			})
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "grant notification permission without prompting")
	return cmd
}

// NewUnsubscribeCommand creates the `moorage unsubscribe` command.
func NewUnsubscribeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe <user-id>",
		Short: "Remove a user's push subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			mgr := newPushManager(cfg, st, push.StaticPrompter(push.PermissionGranted))
			if err := mgr.Unsubscribe(cmd.Context(), args[0]); err != nil {
				return subscribeExitError(err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Emit(map[string]string{"user_id": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "unsubscribed %s\n", args[0])
			})
		},
	}
}

func newPushManager(cfg *config.Config, st *store.Store, prompter push.Prompter) *push.Manager {
	client := api.NewClient(api.Options{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.API.UserAgent,
	})
	provider := push.NewHTTPProvider(cfg.Push.ProviderURL, nil)
	enabled := capability.Probe(nil, provider, nil).Push
	return push.NewManager(st, client, provider, prompter, cfg.Push.VAPIDPublicKey, enabled)
}

func subscribeExitError(err error) error {
	switch {
	case errors.Is(err, push.ErrUnsupported):
		return WrapExitError(ExitCommandError, "push is not configured (set push.provider_url)", err)
	case errors.Is(err, push.ErrPermissionDenied), errors.Is(err, push.ErrPermissionDismissed):
		return WrapExitError(ExitFailure, "permission not granted", err)
	default:
		return WrapExitError(ExitFailure, "push subscription", err)
	}
}

// terminalPrompter maps a y/n answer on the controlling terminal onto
// the permission tri-state: y grants, n denies, anything else counts as
// a dismissal.
type terminalPrompter struct {
	in  io.Reader
	out io.Writer
}

func (t *terminalPrompter) RequestPermission(ctx context.Context) (push.Permission, error) {
	fmt.Fprint(t.out, "Allow booking notifications? [y/n] ")
	line, err := bufio.NewReader(t.in).ReadString('\n')
	if err != nil && line == "" {
		return push.PermissionDefault, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return push.PermissionGranted, nil
	case "n", "no":
		return push.PermissionDenied, nil
	default:
		return push.PermissionDefault, nil
	}
}
