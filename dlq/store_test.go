package dlq

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dead_letter.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestStore_AddCreatesEntry(t *testing.T) {
	s := newTestStore(t)

	key, err := s.Add("evt-1", "task.created", map[string]any{"id": "42"}, errors.New("handler failed"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if key != "evt-1" {
		t.Errorf("key = %q, want %q", key, "evt-1")
	}

	entries := s.Entries(0)
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d, want 1", len(entries))
	}

	e := entries[0]
	if e.EventType != "task.created" {
		t.Errorf("EventType = %q, want %q", e.EventType, "task.created")
	}
	if e.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", e.Attempts)
	}
	if e.LastError != "handler failed" {
		t.Errorf("LastError = %q, want %q", e.LastError, "handler failed")
	}
	if e.FirstFailure.IsZero() || e.LastFailure.IsZero() {
		t.Error("failure timestamps not set")
	}
}

func TestStore_AddSameEventIncrementsAttempts(t *testing.T) {
	s := newTestStore(t)

	_, _ = s.Add("evt-1", "task.created", nil, errors.New("first"))
	_, err := s.Add("evt-1", "task.created", nil, errors.New("second"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	entries := s.Entries(0)
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d, want 1", len(entries))
	}
	if entries[0].Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", entries[0].Attempts)
	}
	if entries[0].LastError != "second" {
		t.Errorf("LastError = %q, want %q", entries[0].LastError, "second")
	}
	if entries[0].LastFailure.Before(entries[0].FirstFailure) {
		t.Error("LastFailure is before FirstFailure")
	}
}

func TestStore_ContentKeyWhenNoEventID(t *testing.T) {
	s := newTestStore(t)

	payload := map[string]any{"user": "a"}
	k1, _ := s.Add("", "user.created", payload, errors.New("boom"))
	k2, _ := s.Add("", "user.created", payload, errors.New("boom again"))

	if k1 == "" {
		t.Fatal("content key is empty")
	}
	if k1 != k2 {
		t.Errorf("same payload produced different keys: %q vs %q", k1, k2)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (same logical event)", s.Len())
	}
}

func TestStore_EntriesMaxAge(t *testing.T) {
	s := newTestStore(t)

	_, _ = s.Add("old", "t", nil, errors.New("boom"))

	// Backdate the entry past the age filter.
	s.mu.Lock()
	s.entries["old"].LastFailure = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	_, _ = s.Add("fresh", "t", nil, errors.New("boom"))

	recent := s.Entries(time.Hour)
	if len(recent) != 1 {
		t.Fatalf("Entries(1h) len = %d, want 1", len(recent))
	}
	if recent[0].EventID != "fresh" {
		t.Errorf("EventID = %q, want %q", recent[0].EventID, "fresh")
	}

	if all := s.Entries(0); len(all) != 2 {
		t.Errorf("Entries(0) len = %d, want 2", len(all))
	}
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)

	_, _ = s.Add("evt-1", "t", nil, errors.New("boom"))

	if err := s.Remove("evt-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}

	if err := s.Remove("evt-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() missing error = %v, want ErrNotFound", err)
	}
}

func TestStore_Purge(t *testing.T) {
	s := newTestStore(t)

	_, _ = s.Add("a", "t", nil, errors.New("boom"))
	_, _ = s.Add("b", "t", nil, errors.New("boom"))

	if err := s.Purge(); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestStore_RoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead_letter.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	_, _ = s.Add("evt-1", "task.created", map[string]any{"title": "write report"}, errors.New("timeout"))
	_, _ = s.Add("evt-1", "task.created", map[string]any{"title": "write report"}, errors.New("timeout again"))
	_, _ = s.Add("evt-2", "task.deleted", nil, errors.New("conflict"))

	before := s.Entries(0)

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() after restart error = %v", err)
	}

	after := reopened.Entries(0)
	if len(after) != len(before) {
		t.Fatalf("reloaded %d entries, want %d", len(after), len(before))
	}

	byID := make(map[string]Entry, len(after))
	for _, e := range after {
		byID[e.EventID] = e
	}

	for _, want := range before {
		got, ok := byID[want.EventID]
		if !ok {
			t.Fatalf("entry %q missing after reload", want.EventID)
		}
		if got.Attempts != want.Attempts {
			t.Errorf("%s: Attempts = %d, want %d", want.EventID, got.Attempts, want.Attempts)
		}
		if got.LastError != want.LastError {
			t.Errorf("%s: LastError = %q, want %q", want.EventID, got.LastError, want.LastError)
		}
		if !got.FirstFailure.Equal(want.FirstFailure) || !got.LastFailure.Equal(want.LastFailure) {
			t.Errorf("%s: timestamps changed across reload", want.EventID)
		}
	}
}

func TestStore_ToleratesMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead_letter.json")

	// A document written by an older reader with most fields absent.
	doc := map[string]map[string]any{
		"evt-1": {"event_type": "task.created"},
	}
	data, _ := json.Marshal(doc)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	entries := s.Entries(0)
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d, want 1", len(entries))
	}
	if entries[0].EventType != "task.created" {
		t.Errorf("EventType = %q, want %q", entries[0].EventType, "task.created")
	}
	if entries[0].Attempts != 0 || entries[0].LastError != "" {
		t.Error("missing fields should decode to zero values")
	}
}

func TestStore_OpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestStore_OpenSkipsNullEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dead_letter.json")
	doc := `{"evt-null": null, "evt-1": {"event_type": "task.created", "attempts": 1}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (null entry dropped)", s.Len())
	}

	entries := s.Entries(0)
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Key != "evt-1" {
		t.Errorf("Key = %q, want evt-1", entries[0].Key)
	}

	// The surviving document must still accept writes.
	if _, err := s.Add("evt-2", "task.created", nil, errors.New("down")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
}
