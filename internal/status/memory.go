package status

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-process status store. It only guards runs
// within one process.
type MemoryStore struct {
	mu      sync.Mutex
	config  Config
	holder  string
	expires time.Time
	status  Status
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(config Config) *MemoryStore {
	return &MemoryStore{
		config: config,
		status: Status{State: Never},
		now:    time.Now,
	}
}

// Acquire takes the lock unless another unexpired holder has it. With no
// ttl and no configured LockTTL the lock never expires.
func (m *MemoryStore) Acquire(ctx context.Context, runID string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.config.LockTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.holder != "" && (m.expires.IsZero() || now.Before(m.expires)) {
		return ErrBusy
	}
	m.holder = runID
	m.expires = time.Time{}
	if ttl > 0 {
		m.expires = now.Add(ttl)
	}
	return nil
}

// Release gives up the lock if runID still holds it
func (m *MemoryStore) Release(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holder == runID {
		m.holder = ""
		m.expires = time.Time{}
	}
	return nil
}

// Get returns the last recorded status
func (m *MemoryStore) Get(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, nil
}

// Set records a status
func (m *MemoryStore) Set(ctx context.Context, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	return nil
}
