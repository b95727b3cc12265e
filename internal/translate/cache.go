package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"maps"
	"sync"
)

// CacheKey identifies a tagged batch in a target language.
func CacheKey(tagged, targetLang string) string {
	sum := sha256.Sum256([]byte(tagged + targetLang))
	return hex.EncodeToString(sum[:])
}

// CacheStore keeps one JSON document per game mapping cache keys to
// per-region translations. Read failures degrade to a miss.
type CacheStore struct {
	dir string
	mu  sync.Mutex
}

// NewCacheStore creates a cache rooted at dir.
func NewCacheStore(dir string) *CacheStore { return &CacheStore{dir: dir} }

// Path returns the cache document for gameKey.
func (s *CacheStore) Path(gameKey string) string { return docPath(s.dir, "cache", gameKey) }

func (s *CacheStore) load(gameKey string) map[string]map[string]string {
	doc, err := readDoc[map[string]map[string]string](s.Path(gameKey))
	if err != nil {
		slog.Warn("translation cache unreadable", "game", gameKey, "error", err)
	}
	if doc == nil {
		doc = make(map[string]map[string]string)
	}
	return doc
}

// Get returns the cached translations for key.
func (s *CacheStore) Get(gameKey, key string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.load(gameKey)[key]
	return v, ok
}

// Put stores result under key, replacing any previous entry.
func (s *CacheStore) Put(gameKey, key string, result map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load(gameKey)
	doc[key] = maps.Clone(result)
	return writeDoc(s.Path(gameKey), doc)
}

// Len returns the number of cached batches for gameKey.
func (s *CacheStore) Len(gameKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.load(gameKey))
}

// Clear removes every cached translation for gameKey.
func (s *CacheStore) Clear(gameKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeDoc(s.Path(gameKey))
}

// covers reports whether cached holds an entry for every name.
func covers(cached map[string]string, names []string) bool {
	for _, n := range names {
		if _, ok := cached[n]; !ok {
			return false
		}
	}
	return true
}
