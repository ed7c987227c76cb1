package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/oriumgames/persist"
)

// Memory is an in-memory Store. It is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Read implements persist.Store.
func (m *Memory) Read(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, notFound(name)
	}
	return slices.Clone(data), nil
}

// Write implements persist.Store.
func (m *Memory) Write(_ context.Context, name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[name] = slices.Clone(data)
	m.mu.Unlock()
	return nil
}

// Delete implements persist.Store. Deleting a missing blob is not an error.
func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	delete(m.blobs, name)
	m.mu.Unlock()
	return nil
}

// List implements persist.Store.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Compile-time check that Memory implements persist.Store.
var _ persist.Store = (*Memory)(nil)
