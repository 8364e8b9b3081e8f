// Package dlq provides a durable flat-file dead-letter store for events
// that exhausted their retries.
//
// The store is a single JSON document on disk keyed by event ID (or a
// content hash when no ID was supplied). Every mutation rewrites the whole
// document under the store lock, through a temp file and rename so readers
// never observe a torn write. The in-memory map is a cache reconstructed
// from the file; the file is the source of truth across restarts.
//
// Concurrent processes sharing one file are unsupported: each process owns
// its DLQ file exclusively.
package dlq

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when the requested entry does not exist.
var ErrNotFound = errors.New("dlq: entry not found")

// Entry is one dead-lettered event. Field names on disk match the persisted
// document contract; readers tolerate missing keys.
type Entry struct {
	// Key is the document key this entry is stored under: the event ID, or
	// a content hash when the event had none. Populated on read, not
	// persisted inside the entry itself.
	Key string `json:"-"`

	EventID      string    `json:"event_id,omitempty"`
	EventType    string    `json:"event_type"`
	Payload      any       `json:"event_data,omitempty"`
	LastError    string    `json:"error,omitempty"`
	Attempts     int       `json:"attempts"`
	FirstFailure time.Time `json:"first_failure"`
	LastFailure  time.Time `json:"last_failure"`
}

// Store is a dead-letter queue backed by one JSON file.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string]*Entry
}

// Open loads the store from path, creating an empty store when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]*Entry),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dlq: read %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("dlq: decode %s: %w", path, err)
		}
		// A null document value decodes to a nil entry; drop it rather
		// than dereference it later.
		for k, e := range s.entries {
			if e == nil {
				delete(s.entries, k)
			}
		}
	}

	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Add records a failed event. A repeated failure of the same logical event
// updates the existing entry in place, incrementing its attempt count. The
// updated document is persisted before returning.
func (s *Store) Add(eventID, eventType string, payload any, cause error) (string, error) {
	key := eventID
	if key == "" {
		key = contentKey(eventType, payload)
	}
	return s.AddKeyed(key, eventID, eventType, payload, cause)
}

// AddKeyed records a failure under an explicit document key. Replaying a
// stored entry must update it in place: an ID-less payload reloaded from
// disk can marshal differently than it did when first hashed, so the
// content key cannot be recomputed reliably.
func (s *Store) AddKeyed(key, eventID, eventType string, payload any, cause error) (string, error) {
	lastErr := ""
	if cause != nil {
		lastErr = cause.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if e, ok := s.entries[key]; ok {
		e.Attempts++
		e.LastError = lastErr
		e.LastFailure = now
	} else {
		s.entries[key] = &Entry{
			EventID:      eventID,
			EventType:    eventType,
			Payload:      payload,
			LastError:    lastErr,
			Attempts:     1,
			FirstFailure: now,
			LastFailure:  now,
		}
	}

	if err := s.persistLocked(); err != nil {
		return key, err
	}
	return key, nil
}

// Entries returns dead-lettered events whose last failure is within maxAge.
// A zero maxAge returns everything.
func (s *Store) Entries(maxAge time.Duration) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	out := make([]Entry, 0, len(s.entries))
	for key, e := range s.entries {
		if e.LastFailure.Before(cutoff) {
			continue
		}
		entry := *e
		entry.Key = key
		out = append(out, entry)
	}

	// Oldest failures first so replay preserves rough failure order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstFailure.Equal(out[j].FirstFailure) {
			return out[i].Key < out[j].Key
		}
		return out[i].FirstFailure.Before(out[j].FirstFailure)
	})
	return out
}

// Remove deletes the entry for key and persists. Returns ErrNotFound when
// no such entry exists.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return ErrNotFound
	}
	delete(s.entries, key)
	return s.persistLocked()
}

// Purge drops every entry and persists the empty document.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	return s.persistLocked()
}

// Len reports the number of dead-lettered events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("dlq: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".dlq-*")
	if err != nil {
		return fmt.Errorf("dlq: create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("dlq: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("dlq: close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("dlq: replace %s: %w", s.path, err)
	}
	return nil
}

// contentKey derives a stable key for events submitted without an ID.
func contentKey(eventType string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", payload))
	}

	h := sha256.New()
	h.Write([]byte(eventType))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)[:8])
}
