package quota

import (
	"context"
	"sync"
	"time"
)

type dayKey struct {
	userID string
	day    string
}

// MemoryStore keeps counters in process. One mutex serializes all updates,
// which is enough for tests and single-node use.
type MemoryStore struct {
	mu       sync.Mutex
	daily    map[dayKey]*UsageRecord
	lifetime map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		daily:    make(map[dayKey]*UsageRecord),
		lifetime: make(map[string]int64),
	}
}

func (s *MemoryStore) Consume(ctx context.Context, key Key, amount, ceiling int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !key.Metric.Daily() {
		used := s.lifetime[key.UserID]
		if ceiling != Unlimited && used+amount > ceiling {
			return used, false, nil
		}
		s.lifetime[key.UserID] = used + amount
		return used + amount, true, nil
	}

	k := dayKey{userID: key.UserID, day: key.Bucket()}
	rec, ok := s.daily[k]
	if !ok {
		rec = &UsageRecord{UserID: key.UserID, Day: DayOf(key.Day)}
		s.daily[k] = rec
	}

	counter := &rec.MessagesUsed
	if key.Metric == MetricVoiceSeconds {
		counter = &rec.VoiceSecondsUsed
	}
	if ceiling != Unlimited && *counter+amount > ceiling {
		return *counter, false, nil
	}
	*counter += amount
	return *counter, true, nil
}

func (s *MemoryStore) Record(ctx context.Context, userID string, day time.Time) (UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := UsageRecord{UserID: userID, Day: DayOf(day)}
	if rec, ok := s.daily[dayKey{userID: userID, day: out.Day.Format(time.DateOnly)}]; ok {
		out.MessagesUsed = rec.MessagesUsed
		out.VoiceSecondsUsed = rec.VoiceSecondsUsed
	}
	out.PhotosStored = s.lifetime[userID]
	return out, nil
}

func (s *MemoryStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := DayOf(before)
	var n int64
	for k, rec := range s.daily {
		if rec.Day.Before(cutoff) {
			delete(s.daily, k)
			n++
		}
	}
	return n, nil
}
