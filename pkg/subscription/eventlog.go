package subscription

import (
	"context"
	"sync"
)

// EventLog records which provider event ids have been processed.
type EventLog interface {
	// Claim marks eventID as processed. It returns false when the id was
	// already claimed.
	Claim(ctx context.Context, eventID string) (bool, error)

	// Release forgets eventID so a redelivery is processed again.
	Release(ctx context.Context, eventID string) error
}

// MemoryEventLog keeps claimed ids in process. Ids are never expired.
type MemoryEventLog struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{seen: make(map[string]struct{})}
}

func (l *MemoryEventLog) Claim(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[eventID]; ok {
		return false, nil
	}
	l.seen[eventID] = struct{}{}
	return true, nil
}

func (l *MemoryEventLog) Release(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, eventID)
	return nil
}
