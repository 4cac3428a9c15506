// Package session provides IntentStore implementations. Payment intents are
// session-scoped by design: they exist between checkout and confirmation and
// are never a system of record.
package session

import (
	"context"
	"sync"
	"time"

	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

// MemoryStore keeps intents in process memory. Suitable for single-instance
// deployments and tests; multi-instance hosts use RedisStore so the pay view
// can land on any replica.
type MemoryStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	intents map[string]memoryEntry
}

type memoryEntry struct {
	intent  payments.PaymentIntent
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		intents: map[string]memoryEntry{},
	}
}

// DefaultTTL bounds how long an abandoned checkout keeps its intent around.
const DefaultTTL = 24 * time.Hour

func (s *MemoryStore) Put(_ context.Context, sessionID string, intent *payments.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[sessionID] = memoryEntry{
		intent:  *intent,
		expires: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*payments.PaymentIntent, error) {
	s.mu.RLock()
	entry, ok := s.intents[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, payments.ErrNoIntent
	}
	if time.Now().After(entry.expires) {
		// Evict so abandoned checkouts do not accumulate entries forever.
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have refreshed
		// the session in the meantime.
		if cur, ok := s.intents[sessionID]; ok && time.Now().After(cur.expires) {
			delete(s.intents, sessionID)
		}
		s.mu.Unlock()
		return nil, payments.ErrNoIntent
	}
	intent := entry.intent
	return &intent, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, sessionID)
	return nil
}
