package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	genPrefix  = "gen-"
	indexFile  = "index.json"
	stagingExt = ".staging"
)

// indexEntry describes one cached response inside a generation.
type indexEntry struct {
	File        string `json:"file"`
	ContentType string `json:"content_type"`
	Status      int    `json:"status"`
}

// generation is one version-tagged cache namespace on disk. Reads take a
// handle; a generation doomed by Activate is deleted only after the last
// handle is released, so GC never yanks a namespace out from under an
// in-flight fetch.
type generation struct {
	version string
	dir     string
	index   map[string]indexEntry

	mu     sync.Mutex
	refs   int
	doomed bool
}

// genDirName maps a version tag to a directory name. Version strings
// come from build metadata and may contain path-hostile characters.
func genDirName(version string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, version)
	return genPrefix + safe
}

// entryFileName keys a cached body file by URL path hash.
func entryFileName(urlPath string) string {
	sum := sha256.Sum256([]byte(urlPath))
	return hex.EncodeToString(sum[:16]) + ".body"
}

// openGeneration loads an existing generation directory.
func openGeneration(root, version string) (*generation, error) {
	dir := filepath.Join(root, genDirName(version))
	data, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("open cache generation %q: %w", version, err)
	}
	var index map[string]indexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("open cache generation %q: corrupt index: %w", version, err)
	}
	return &generation{version: version, dir: dir, index: index}, nil
}

// acquire takes a read handle. Returns false if the generation is
// already doomed.
func (g *generation) acquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.doomed {
		return false
	}
	g.refs++
	return true
}

// release drops a read handle and completes a deferred deletion if this
// was the last one.
func (g *generation) release() {
	g.mu.Lock()
	g.refs--
	doDelete := g.doomed && g.refs == 0
	g.mu.Unlock()
	if doDelete {
		os.RemoveAll(g.dir)
	}
}

// doom marks the generation for deletion. Deletes immediately when no
// reads are in flight, otherwise defers to the final release.
func (g *generation) doom() {
	g.mu.Lock()
	g.doomed = true
	doDelete := g.refs == 0
	g.mu.Unlock()
	if doDelete {
		os.RemoveAll(g.dir)
	}
}

// lookup returns the index entry for a URL path.
func (g *generation) lookup(urlPath string) (indexEntry, bool) {
	e, ok := g.index[urlPath]
	return e, ok
}

// read returns the cached body for an entry.
func (g *generation) read(e indexEntry) ([]byte, error) {
	return os.ReadFile(filepath.Join(g.dir, e.File))
}

// writeIndex persists a generation index. Written last during install,
// so a generation without an index is recognizably incomplete.
func writeIndex(dir string, index map[string]indexEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache index: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, indexFile), data, 0o644)
}

// listGenerationVersions enumerates the version tags present under root.
func listGenerationVersions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache generations: %w", err)
	}
	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, genPrefix) || strings.HasSuffix(name, stagingExt) {
			continue
		}
		versions = append(versions, strings.TrimPrefix(name, genPrefix))
	}
	return versions, nil
}
