// Package state persists the input fingerprints of incremental nodes between
// invocations. A node whose fingerprint is unchanged and whose declared
// outputs all exist is skipped by the executor.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/specialistvlad/bundlegrid/internal/ctxlog"
	"github.com/specialistvlad/bundlegrid/internal/dag"
	"gopkg.in/yaml.v3"
)

const formatVersion = 1

type entry struct {
	Fingerprint string `yaml:"fingerprint"`
}

type document struct {
	Version int              `yaml:"version"`
	Nodes   map[string]entry `yaml:"nodes"`
}

// Store is a YAML-backed fingerprint store. It implements dag.Cache.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string]entry
}

var _ dag.Cache = (*Store)(nil)

// Open loads the store at path. A missing file yields an empty store; a file
// written by an incompatible version is ignored so every node runs once.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: make(map[string]entry)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", path, err)
	}
	if doc.Version == formatVersion && doc.Nodes != nil {
		s.entries = doc.Nodes
	}
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// Probe reports whether n can be skipped.
func (s *Store) Probe(ctx context.Context, n *dag.Node) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	prev, ok := s.entries[n.ID]
	s.mu.Unlock()
	if !ok {
		logger.Debug("No recorded fingerprint.")
		return false, nil
	}

	for _, out := range n.Outputs {
		if _, err := os.Stat(out); err != nil {
			logger.Debug("Declared output missing, node must run.", "output", out)
			return false, nil
		}
	}

	fp, err := Fingerprint(n.Inputs, n.Params)
	if err != nil {
		return false, err
	}
	if fp != prev.Fingerprint {
		logger.Debug("Inputs changed since last run.")
		return false, nil
	}
	return true, nil
}

// Commit records the fingerprint of n's inputs as they are after the node
// ran, then persists the store atomically.
func (s *Store) Commit(ctx context.Context, n *dag.Node) error {
	fp, err := Fingerprint(n.Inputs, n.Params)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[n.ID] = entry{Fingerprint: fp}
	return s.saveLocked()
}

// Forget drops the fingerprint of a node.
func (s *Store) Forget(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(document{Version: formatVersion, Nodes: s.entries})
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing state file %s: %w", s.path, err)
	}
	return nil
}
