package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewell/moorage/internal/push"
	"github.com/tidewell/moorage/internal/store"
	"github.com/tidewell/moorage/internal/testutil"
)

func TestTerminalPrompter(t *testing.T) {
	cases := []struct {
		input string
		want  push.Permission
	}{
		{"y\n", push.PermissionGranted},
		{"yes\n", push.PermissionGranted},
		{"YES\n", push.PermissionGranted},
		{"n\n", push.PermissionDenied},
		{"no\n", push.PermissionDenied},
		{"maybe\n", push.PermissionDefault},
		{"\n", push.PermissionDefault},
		{"", push.PermissionDefault},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q", tc.input), func(t *testing.T) {
			out := &bytes.Buffer{}
			p := &terminalPrompter{in: bytes.NewBufferString(tc.input), out: out}

			perm, err := p.RequestPermission(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, perm)
			assert.Contains(t, out.String(), "Allow booking notifications?")
		})
	}
}

func TestSubscribeExitError(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(subscribeExitError(push.ErrUnsupported)))
	assert.Equal(t, ExitFailure, GetExitCode(subscribeExitError(push.ErrPermissionDenied)))
	assert.Equal(t, ExitFailure, GetExitCode(subscribeExitError(push.ErrPermissionDismissed)))
	assert.Equal(t, ExitFailure, GetExitCode(subscribeExitError(io.ErrUnexpectedEOF)))
}

// writePushConfig is writeTestConfig plus a provider URL.
func writePushConfig(t *testing.T, baseURL, providerURL string) string {
	t.Helper()
	dir := t.TempDir()
	src := fmt.Sprintf(`
api: base_url: %q
database: %q
cache: version: "test"
push: {
	provider_url:     %q
	vapid_public_key: "BPub"
}
`, baseURL, filepath.Join(dir, "moorage.db"), providerURL)
	path := filepath.Join(dir, "moorage.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func newProviderServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			fmt.Fprintf(w, `{"endpoint":%q,"keys":{"p256dh":"pk","auth":"auth"}}`, srv.URL+"/ch/1")
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubscribeCommand(t *testing.T) {
	api := testutil.NewBookingServer()
	t.Cleanup(api.Close)
	provider := newProviderServer(t)
	cfg := writePushConfig(t, api.URL, provider.URL)

	out, err := execute("--config", cfg, "subscribe", "u-1", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "subscribed u-1")
	assert.Contains(t, out, provider.URL+"/ch/1")

	seedStore(t, cfg, func(st *store.Store) {
		sub, getErr := st.GetSubscription(context.Background(), "u-1")
		require.NoError(t, getErr)
		assert.Equal(t, provider.URL+"/ch/1", sub.Endpoint)
	})
}

func TestSubscribeWithoutProviderURL(t *testing.T) {
	api := testutil.NewBookingServer()
	t.Cleanup(api.Close)
	cfg := writeTestConfig(t, api.URL)

	_, err := execute("--config", cfg, "subscribe", "u-1", "--yes")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSubscribePromptDeclined(t *testing.T) {
	api := testutil.NewBookingServer()
	t.Cleanup(api.Close)
	provider := newProviderServer(t)
	cfg := writePushConfig(t, api.URL, provider.URL)

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(bytes.NewBufferString("n\n"))
	cmd.SetArgs([]string{"--config", cfg, "subscribe", "u-1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestUnsubscribeCommand(t *testing.T) {
	api := testutil.NewBookingServer()
	t.Cleanup(api.Close)
	provider := newProviderServer(t)
	cfg := writePushConfig(t, api.URL, provider.URL)

	_, err := execute("--config", cfg, "subscribe", "u-1", "--yes")
	require.NoError(t, err)

	out, err := execute("--config", cfg, "unsubscribe", "u-1")
	require.NoError(t, err)
	assert.Contains(t, out, "unsubscribed u-1")

	seedStore(t, cfg, func(st *store.Store) {
		_, getErr := st.GetSubscription(context.Background(), "u-1")
		assert.True(t, store.IsNotFound(getErr))
	})
}
