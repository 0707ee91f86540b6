package dict

import (
	"fmt"
	"sync"
)

// Registry holds the current reference snapshot and swaps it atomically on reload.
// Snapshots handed out by Current are never mutated.
type Registry struct {
	mu        sync.RWMutex
	snap      *Snapshot
	bundleDir string
}

// NewRegistry creates an empty registry for the given bundle directory.
func NewRegistry(bundleDir string) *Registry {
	return &Registry{bundleDir: bundleDir}
}

// Load reads the bundle directory and replaces the current snapshot.
func (r *Registry) Load() error {
	s, err := LoadSnapshot(r.bundleDir)
	if err != nil {
		return fmt.Errorf("load bundle %s: %w", r.bundleDir, err)
	}
	r.mu.Lock()
	r.snap = s
	r.mu.Unlock()
	return nil
}

// Reload reloads the bundle from disk (hot reload).
func (r *Registry) Reload() error {
	return r.Load()
}

// Current returns the loaded snapshot, or nil before the first Load.
func (r *Registry) Current() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// BundleInfo is the public metadata for the loaded bundle.
type BundleInfo struct {
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"source_url,omitempty"`
	License     string    `json:"license"`
	Drugs       int       `json:"drugs"`
	Names       int       `json:"names"`
	Synonyms    int       `json:"synonyms"`
	Products    int       `json:"products"`
	Identifiers int       `json:"identifiers"`
	Stats       LoadStats `json:"load_stats"`
}

// Info describes the loaded bundle. ok is false before the first Load.
func (r *Registry) Info() (info BundleInfo, ok bool) {
	s := r.Current()
	if s == nil {
		return BundleInfo{}, false
	}
	return BundleInfo{
		ID:          s.Manifest.ID,
		Version:     s.Manifest.Version,
		Source:      s.Manifest.Source,
		SourceURL:   s.Manifest.SourceURL,
		License:     s.Manifest.License,
		Drugs:       len(s.Drugs),
		Names:       len(s.Names()),
		Synonyms:    len(s.Synonyms),
		Products:    len(s.Products),
		Identifiers: len(s.Identifiers),
		Stats:       s.Stats,
	}, true
}
