package stage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/cwsmith/redev/types"
)

// MemoryStore is an in-process Store.
//
// Waiters park on a change channel that is closed and replaced on every Put,
// so a single Put wakes every waiter, which then re-checks its key.
type MemoryStore struct {
	data *xsync.Map[string, []byte]

	mu      sync.Mutex
	changed chan struct{}
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    xsync.NewMap[string, []byte](),
		changed: make(chan struct{}),
	}
}

// Put stores a copy of value under key and wakes all waiters.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.data.Store(key, slices.Clone(value))

	m.mu.Lock()
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	return nil
}

// Get returns a copy of the value under key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data.Load(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return slices.Clone(v), nil
}

// Wait blocks until key is stored or ctx is done.
func (m *MemoryStore) Wait(ctx context.Context, key string) ([]byte, error) {
	for {
		// Grab the channel before the lookup so a Put in between is not missed.
		m.mu.Lock()
		changed := m.changed
		m.mu.Unlock()

		if v, ok := m.data.Load(key); ok {
			return slices.Clone(v), nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for %s: %w", types.ErrTransport, key, ctx.Err())
		}
	}
}

// Purge removes every key starting with prefix.
func (m *MemoryStore) Purge(_ context.Context, prefix string) error {
	m.data.Range(func(key string, _ []byte) bool {
		if strings.HasPrefix(key, prefix) {
			m.data.Delete(key)
		}

		return true
	})

	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	return m.data.Size()
}
