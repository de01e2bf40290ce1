package snapshot

import (
	"context"
	"sync"

	"github.com/saiset-co/sai-lru/types"
)

// MemoryStorage is an in-process record slot. Several stores may share one
// to model sibling instances writing the same location.
type MemoryStorage struct {
	mu      sync.RWMutex
	data    []byte
	present bool
	writes  int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.present {
		return nil, types.ErrSnapshotNotFound
	}

	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemoryStorage) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.data = buf
	m.present = true
	m.writes++
	m.mu.Unlock()

	return nil
}

// Writes reports how many times the record has been written.
func (m *MemoryStorage) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *MemoryStorage) Close() error {
	return nil
}
