// Package cache serves a versioned offline asset cache.
//
// The Proxy sits on every outgoing fetch as an http.RoundTripper:
// manifest URLs are answered cache-first from the active generation,
// everything else passes through to the network untouched - there is no
// write-through for dynamic routes, which is what bounds cache growth.
//
// Lifecycle mirrors a worker deployment: Install populates a staging
// directory with the full manifest and promotes it atomically (a partial
// cache is never visible); Activate garbage-collects every generation
// whose version tag is not current. Activation is the only GC point.
package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
)

// Phase is the worker-style lifecycle position of the proxy.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInstalling
	PhaseInstalled
	PhaseActivating
	PhaseActivated
)

func (p Phase) String() string {
	switch p {
	case PhaseInstalling:
		return "installing"
	case PhaseInstalled:
		return "installed"
	case PhaseActivating:
		return "activating"
	case PhaseActivated:
		return "activated"
	default:
		return "idle"
	}
}

// ErrInstallFailed wraps any asset fetch or write failure during Install.
// Installation is all-or-nothing: the proxy never activates over a
// partially populated cache.
var ErrInstallFailed = errors.New("cache install failed")

// Options configures a Proxy.
type Options struct {
	Dir      string            // root directory for generations
	Version  string            // current build version tag
	Manifest []string          // fixed offline-asset URL paths
	Origin   string            // scheme://host used to fetch manifest assets
	Base     http.RoundTripper // network transport; default http.DefaultTransport
}

// Proxy is the cache-first transport for the fixed asset manifest.
type Proxy struct {
	dir      string
	origin   string
	base     http.RoundTripper
	manifest []string

	mu      sync.Mutex
	phase   Phase
	version string
	active  *generation
}

// NewProxy creates an inactive proxy. Call Install then Activate before
// use; until then every request passes straight through.
func NewProxy(opts Options) *Proxy {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return &Proxy{
		dir:      opts.Dir,
		origin:   opts.Origin,
		base:     base,
		manifest: append([]string(nil), opts.Manifest...),
		version:  opts.Version,
	}
}

// Phase returns the current lifecycle phase.
func (p *Proxy) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Version returns the version tag the proxy was configured with.
func (p *Proxy) Version() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Install fetches every manifest URL into a staging directory and
// promotes it to a generation in one rename. Any failure aborts the
// whole install and removes the staging directory.
//
// Reinstalling an existing version is a no-op beyond verification that
// the generation opens.
func (p *Proxy) Install(ctx context.Context) error {
	p.setPhase(PhaseInstalling)

	p.mu.Lock()
	version := p.version
	manifest := append([]string(nil), p.manifest...)
	p.mu.Unlock()

	finalDir := filepath.Join(p.dir, genDirName(version))
	if _, err := os.Stat(filepath.Join(finalDir, indexFile)); err == nil {
		if _, err := openGeneration(p.dir, version); err == nil {
			p.setPhase(PhaseInstalled)
			slog.Debug("cache generation already installed", "version", version)
			return nil
		}
		// Corrupt leftover; rebuild it.
		os.RemoveAll(finalDir)
	}

	staging := finalDir + stagingExt
	os.RemoveAll(staging)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		p.setPhase(PhaseIdle)
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	index := make(map[string]indexEntry, len(manifest))
	for _, urlPath := range manifest {
		entry, err := p.fetchAsset(ctx, staging, urlPath)
		if err != nil {
			os.RemoveAll(staging)
			p.setPhase(PhaseIdle)
			return fmt.Errorf("%w: %s: %v", ErrInstallFailed, urlPath, err)
		}
		index[urlPath] = entry
	}

	if err := writeIndex(staging, index); err != nil {
		os.RemoveAll(staging)
		p.setPhase(PhaseIdle)
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}
	if err := os.Rename(staging, finalDir); err != nil {
		os.RemoveAll(staging)
		p.setPhase(PhaseIdle)
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	p.setPhase(PhaseInstalled)
	slog.Info("cache generation installed", "version", version, "assets", len(index))
	return nil
}

// Activate makes the installed generation current and dooms every other
// generation. A doomed generation with reads in flight is deleted when
// its last handle closes, never mid-read.
func (p *Proxy) Activate() error {
	p.setPhase(PhaseActivating)

	p.mu.Lock()
	version := p.version
	previous := p.active
	p.mu.Unlock()

	gen, err := openGeneration(p.dir, version)
	if err != nil {
		p.setPhase(PhaseIdle)
		return err
	}

	versions, err := listGenerationVersions(p.dir)
	if err != nil {
		p.setPhase(PhaseIdle)
		return err
	}
	currentDir := genDirName(version)
	removed := 0
	for _, v := range versions {
		if genDirName(v) == currentDir {
			continue
		}
		if previous != nil && genDirName(previous.version) == genDirName(v) {
			previous.doom()
		} else {
			stale := &generation{version: v, dir: filepath.Join(p.dir, genDirName(v))}
			stale.doom()
		}
		removed++
	}

	p.mu.Lock()
	p.active = gen
	p.phase = PhaseActivated
	p.mu.Unlock()

	slog.Info("cache generation activated", "version", version, "purged", removed)
	return nil
}

// SetVersion retargets the proxy at a new build version. The caller
// must Install and Activate afterwards; until then the previous
// generation keeps serving.
func (p *Proxy) SetVersion(version string, manifest []string) {
	p.mu.Lock()
	p.version = version
	if manifest != nil {
		p.manifest = append([]string(nil), manifest...)
	}
	p.phase = PhaseIdle
	p.mu.Unlock()
}

// RoundTrip implements http.RoundTripper: cache-first for manifest URLs
// in the active generation, transparent passthrough for everything else.
func (p *Proxy) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet {
		p.mu.Lock()
		gen := p.active
		p.mu.Unlock()

		if gen != nil && gen.acquire() {
			entry, ok := gen.lookup(req.URL.Path)
			if ok {
				body, err := gen.read(entry)
				gen.release()
				if err != nil {
					return nil, fmt.Errorf("cached asset read: %w", err)
				}
				return cachedResponse(req, entry, body), nil
			}
			gen.release()
		}
	}
	return p.base.RoundTrip(req)
}

// fetchAsset downloads one manifest URL into the staging directory.
func (p *Proxy) fetchAsset(ctx context.Context, staging, urlPath string) (indexEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.origin+urlPath, nil)
	if err != nil {
		return indexEntry{}, err
	}
	resp, err := p.base.RoundTrip(req)
	if err != nil {
		return indexEntry{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return indexEntry{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	file := entryFileName(urlPath)
	out, err := os.Create(filepath.Join(staging, file))
	if err != nil {
		return indexEntry{}, err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return indexEntry{}, err
	}
	if err := out.Close(); err != nil {
		return indexEntry{}, err
	}

	return indexEntry{
		File:        file,
		ContentType: resp.Header.Get("Content-Type"),
		Status:      resp.StatusCode,
	}, nil
}

func (p *Proxy) setPhase(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

func cachedResponse(req *http.Request, entry indexEntry, body []byte) *http.Response {
	header := make(http.Header)
	if entry.ContentType != "" {
		header.Set("Content-Type", entry.ContentType)
	}
	header.Set("X-Moorage-Cache", "hit")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
