package snapshot

import (
	"context"
	"maps"
	"sync"

	"github.com/amirasaad/unitconv/pkg/exchange"
)

// MemoryStore keeps the snapshot for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	snap *exchange.Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, snap exchange.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = &exchange.Snapshot{Rates: maps.Clone(snap.Rates), LastRefreshed: snap.LastRefreshed}
	return nil
}

func (m *MemoryStore) Load(context.Context) (*exchange.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return nil, nil
	}
	return &exchange.Snapshot{Rates: maps.Clone(m.snap.Rates), LastRefreshed: m.snap.LastRefreshed}, nil
}

var _ exchange.SnapshotStore = (*MemoryStore)(nil)
