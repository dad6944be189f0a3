// Package cache provides the process-wide lookup caches used by the region
// code resolver and the geocoder. Entries are written once and never expire.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Store is a write-once key/value cache. Concurrent misses on the same key
// share a single computation.
type Store[V any] struct {
	mu     sync.RWMutex
	items  map[string]V
	group  singleflight.Group
	path   string
	logger *logrus.Logger
}

// New returns an in-memory store. When path is non-empty the store is
// seeded from that JSON file and rewritten after every new entry.
func New[V any](path string, logger *logrus.Logger) *Store[V] {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Store[V]{
		items:  make(map[string]V),
		path:   path,
		logger: logger,
	}
	if path != "" {
		s.load()
	}
	return s
}

func (s *Store[V]) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", s.path).Warn("Could not load cache")
		}
		return
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Error("Failed to parse cache")
		s.items = make(map[string]V)
		return
	}
	s.logger.WithField("path", s.path).Infof("Loaded %d cached entries", len(s.items))
}

// Get returns the cached value for key.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// GetOrCompute returns the cached value or runs compute once for key.
// Results are cached only when compute reports ok; misses are retried on
// the next call.
//
// The shared compute runs on a context detached from ctx's cancellation, so
// one caller going away does not fail the others waiting on the same key.
// Each caller still returns as soon as its own ctx is done.
func (s *Store[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, bool, error)) (V, bool, error) {
	if v, ok := s.Get(key); ok {
		return v, true, nil
	}

	type outcome struct {
		value V
		ok    bool
	}
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		if v, ok := s.Get(key); ok {
			return outcome{value: v, ok: true}, nil
		}
		v, ok, err := compute(shared)
		if err != nil || !ok {
			return outcome{value: v, ok: false}, err
		}
		s.put(key, v)
		return outcome{value: v, ok: true}, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	case res := <-ch:
		o, _ := res.Val.(outcome)
		return o.value, o.ok, res.Err
	}
}

func (s *Store[V]) put(key string, v V) {
	s.mu.Lock()
	if _, exists := s.items[key]; exists {
		s.mu.Unlock()
		return
	}
	s.items[key] = v
	s.mu.Unlock()

	if s.path != "" {
		if err := s.save(); err != nil {
			s.logger.WithError(err).WithField("path", s.path).Error("Failed to save cache")
		}
	}
}

func (s *Store[V]) save() error {
	s.mu.RLock()
	data, err := json.Marshal(s.items)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Len returns the number of cached entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
