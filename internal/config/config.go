// Package config loads and validates the moorage deployment descriptor.
//
// The descriptor is a CUE file: the embedded schema supplies defaults
// and constraints, the user file supplies the deployment's values, and
// unification rejects anything malformed before the daemon starts. The
// same file carries the build version and offline asset manifest, so a
// deploy is one file write (which the cache watcher picks up).
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded deployment descriptor.
type Config struct {
	API      APIConfig   `json:"api"`
	Database string      `json:"database"`
	Cache    CacheConfig `json:"cache"`
	Sync     SyncConfig  `json:"sync"`
	Push     PushConfig  `json:"push"`
}

// APIConfig locates the booking-manager service.
type APIConfig struct {
	BaseURL   string `json:"base_url"`
	UserAgent string `json:"user_agent"`
}

// CacheConfig describes the offline asset cache deployment.
type CacheConfig struct {
	Dir      string   `json:"dir"`
	Version  string   `json:"version"`
	Origin   string   `json:"origin"`
	Manifest []string `json:"manifest"`
}

// SyncConfig tunes replay behavior.
type SyncConfig struct {
	RetryCeiling         int `json:"retry_ceiling"`
	BaseDelaySeconds     int `json:"base_delay_seconds"`
	MaxDelaySeconds      int `json:"max_delay_seconds"`
	ProbeIntervalSeconds int `json:"probe_interval_seconds"`
}

// PushConfig locates the push provider. Empty provider_url means the
// host has no push capability and the feature is disabled.
type PushConfig struct {
	ProviderURL    string `json:"provider_url"`
	VAPIDPublicKey string `json:"vapid_public_key"`
}

// BaseDelay returns the replay backoff base as a Duration.
func (s SyncConfig) BaseDelay() time.Duration {
	return time.Duration(s.BaseDelaySeconds) * time.Second
}

// MaxDelay returns the replay backoff cap as a Duration.
func (s SyncConfig) MaxDelay() time.Duration {
	return time.Duration(s.MaxDelaySeconds) * time.Second
}

// ProbeInterval returns the connectivity probe period as a Duration.
func (s SyncConfig) ProbeInterval() time.Duration {
	return time.Duration(s.ProbeIntervalSeconds) * time.Second
}

// Load reads, validates, and decodes the descriptor at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Parse validates and decodes descriptor bytes. filename is used in
// error positions only.
func Parse(data []byte, filename string) (*Config, error) {
	cuectx := cuecontext.New()

	schema := cuectx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("internal schema error: %w", err)
	}

	value := cuectx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Cache.Origin == "" {
		cfg.Cache.Origin = cfg.API.BaseURL
	}
	return &cfg, nil
}
