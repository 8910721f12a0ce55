package entitlement

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Entitlement
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Entitlement),
		now:     time.Now,
	}
}

func (s *MemoryStore) Ensure(ctx context.Context, userID string) (Entitlement, error) {
	if userID == "" {
		return Entitlement{}, ErrMissingUserID
	}

	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	if ok {
		return clone(rec), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[userID]; ok {
		return clone(rec), nil
	}
	rec = Default(userID, s.now().UTC())
	s.records[userID] = rec
	return clone(rec), nil
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return Entitlement{}, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) FindByCustomerID(ctx context.Context, customerID string) (Entitlement, error) {
	if customerID == "" {
		return Entitlement{}, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.CustomerID == customerID {
			return clone(rec), nil
		}
	}
	return Entitlement{}, ErrNotFound
}

func (s *MemoryStore) AttachExternalIDs(ctx context.Context, userID, customerID, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	if !ok {
		return ErrNotFound
	}
	mergeExternalIDs(&rec, customerID, subscriptionID)
	rec.UpdatedAt = s.now().UTC()
	s.records[userID] = rec
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, next Entitlement, expected Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[next.UserID]
	if !ok {
		return ErrNotFound
	}
	if !rec.LastEvent.Equal(expected) {
		return ErrConflict
	}

	rec.Tier = next.Tier
	rec.Status = next.Status
	rec.ExpiresAt = copyTime(next.ExpiresAt)
	rec.LastEvent = next.LastEvent
	mergeExternalIDs(&rec, next.CustomerID, next.SubscriptionID)
	rec.UpdatedAt = s.now().UTC()
	s.records[next.UserID] = rec
	return nil
}

func mergeExternalIDs(rec *Entitlement, customerID, subscriptionID string) {
	if customerID != "" {
		rec.CustomerID = customerID
	}
	if subscriptionID != "" {
		rec.SubscriptionID = subscriptionID
	}
}

func clone(e Entitlement) Entitlement {
	e.ExpiresAt = copyTime(e.ExpiresAt)
	return e
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
