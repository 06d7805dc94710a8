package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryVault is an in-memory implementation of the Vault interface, useful
// for testing. Safe for concurrent use.
type MemoryVault struct {
	blobs map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{blobs: make(map[string][]byte)}
}

// Put stores a blob under the given key, replacing any existing blob.
func (m *MemoryVault) Put(_ context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

// Get retrieves a blob by key.
func (m *MemoryVault) Get(_ context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[key]
	if !ok {
		return fmt.Errorf("blob not found: %s", key)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

// Keys returns all stored keys. Test helper.
func (m *MemoryVault) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	return keys
}

// ValidateSetup always succeeds for the in-memory vault.
func (m *MemoryVault) ValidateSetup(context.Context) error {
	return nil
}

var _ Vault = (*MemoryVault)(nil)
