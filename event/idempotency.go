package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// IdempotencyConfig configures the dedup store.
type IdempotencyConfig struct {
	// TTL is how long a key marks later submissions as duplicates.
	// Default: 5 minutes
	TTL time.Duration

	// MaxEntries bounds the store; the oldest entries are evicted first
	// once the bound is reached.
	// Default: 10000
	MaxEntries int
}

// IdempotencyStore deduplicates event submissions by a deterministic hash
// of event type and payload. A key seen less than TTL ago marks the
// submission a duplicate; expired and evicted keys are forgotten.
type IdempotencyStore struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, time.Time]
}

// NewIdempotencyStore creates a new dedup store.
func NewIdempotencyStore(config IdempotencyConfig) *IdempotencyStore {
	// Apply defaults
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}

	return &IdempotencyStore{
		seen: expirable.NewLRU[string, time.Time](config.MaxEntries, nil, config.TTL),
	}
}

// IsDuplicate reports whether an event with this type and payload was seen
// within the TTL. A first sighting is recorded as a side effect; duplicates
// leave the store untouched so the TTL runs from the first submission.
func (s *IdempotencyStore) IsDuplicate(eventType string, payload any) (bool, error) {
	key, err := idempotencyKey(eventType, payload)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen.Get(key); ok {
		return true, nil
	}

	s.seen.Add(key, time.Now())
	return false, nil
}

// Len returns the number of live keys, counting entries that have expired
// but not yet been evicted.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen.Len()
}

// idempotencyKey builds a deterministic key from the event type and the
// canonical JSON form of the payload. encoding/json emits map keys in
// sorted order, so equal payloads always hash identically.
func idempotencyKey(eventType string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("event: canonicalize payload: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(eventType))
	h.Write([]byte{0})
	h.Write(data)

	return fmt.Sprintf("event:%s:%s", eventType, hex.EncodeToString(h.Sum(nil)[:8])), nil
}
