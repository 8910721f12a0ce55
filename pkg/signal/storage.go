package signal

import (
	"context"
	"slices"
	"sync"
)

// Storage persists signals.
type Storage interface {
	Store(ctx context.Context, s Signal) error
}

// Reader queries persisted signals.
type Reader interface {
	Query(ctx context.Context, c Criteria) ([]Signal, error)
}

// Notifier pushes alerting signals to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, s Signal) error
}

// MemoryStorage keeps signals in process.
type MemoryStorage struct {
	mu      sync.RWMutex
	signals []Signal
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Store(_ context.Context, s Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	return nil
}

func (m *MemoryStorage) StoreBatch(_ context.Context, batch []Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, batch...)
	return nil
}

func (m *MemoryStorage) Query(_ context.Context, c Criteria) ([]Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Signal, 0)
	for _, s := range slices.Backward(m.signals) {
		if !c.Match(s) {
			continue
		}
		out = append(out, s)
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored signals.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signals)
}
