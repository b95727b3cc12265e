// Package feed carries capture and translation snapshots to display
// collaborators and keeps a short history of translations.
package feed

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind names an event type.
type Kind string

const (
	KindState       Kind = "state"
	KindLive        Kind = "live"
	KindStable      Kind = "stable"
	KindFrame       Kind = "frame"
	KindTranslation Kind = "translation"
	KindSnip        Kind = "snip"
	KindStatus      Kind = "status"
	KindError       Kind = "error"
)

// FrameInfo describes a captured frame without its pixels.
type FrameInfo struct {
	Sequence uint64 `json:"sequence"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Method   string `json:"method"`
}

// Event is an immutable snapshot. Maps are owned by the event.
type Event struct {
	ID           ulid.ULID         `json:"id"`
	Kind         Kind              `json:"type"`
	Time         time.Time         `json:"time"`
	GameKey      string            `json:"game,omitempty"`
	State        string            `json:"state,omitempty"`
	Texts        map[string]string `json:"texts,omitempty"`
	Translations map[string]string `json:"translations,omitempty"`
	Cached       bool              `json:"cached,omitempty"`
	Frame        *FrameInfo        `json:"frame,omitempty"`
	Status       string            `json:"status,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Entry is one completed translation.
type Entry struct {
	ID           ulid.ULID         `json:"id"`
	Time         time.Time         `json:"time"`
	GameKey      string            `json:"game"`
	Source       map[string]string `json:"source"`
	Translations map[string]string `json:"translations"`
	Cached       bool              `json:"cached"`
}

// Store keeps recent translations and a buffered event channel.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	maxSize  int
	eventsCh chan Event
}

// NewStore creates a feed.
func NewStore(maxEntries, eventBuffer int) *Store {
	return &Store{
		entries:  make([]Entry, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
	}
}

// Add records a translation.
func (s *Store) Add(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
}

// Recent returns up to n translations, newest last. n <= 0 returns all.
func (s *Store) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.entries) > n {
		start = len(s.entries) - n
	}
	return slices.Clone(s.entries[start:])
}

// Latest returns the newest translation for gameKey.
func (s *Store) Latest(gameKey string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].GameKey == gameKey {
			return s.entries[i], true
		}
	}
	return Entry{}, false
}

// Events returns the event channel.
func (s *Store) Events() <-chan Event {
	return s.eventsCh
}

// Emit stamps and sends an event without blocking. It reports false when the
// buffer was full and the event was dropped.
func (s *Store) Emit(e Event) bool {
	if e.ID == (ulid.ULID{}) {
		e.ID = ulid.Make()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.Texts = maps.Clone(e.Texts)
	e.Translations = maps.Clone(e.Translations)
	select {
	case s.eventsCh <- e:
		return true
	default:
		return false
	}
}
