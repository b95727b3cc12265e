package translate

import (
	"log/slog"
	"sync"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationStore persists prior user/assistant turns per game so later
// requests keep names and tone consistent.
type ConversationStore struct {
	dir string
	mu  sync.Mutex
}

// NewConversationStore creates a store rooted at dir.
func NewConversationStore(dir string) *ConversationStore { return &ConversationStore{dir: dir} }

// Path returns the context document for gameKey.
func (s *ConversationStore) Path(gameKey string) string { return docPath(s.dir, "context", gameKey) }

func (s *ConversationStore) load(gameKey string) []Message {
	msgs, err := readDoc[[]Message](s.Path(gameKey))
	if err != nil {
		slog.Warn("conversation context unreadable", "game", gameKey, "error", err)
	}
	return msgs
}

// Recent returns up to the last 2*limit stored messages, oldest first.
func (s *ConversationStore) Recent(gameKey string, limit int) []Message {
	if limit <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.load(gameKey)
	if n := 2 * limit; len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// Append adds a user/assistant pair unless user repeats the most recent
// stored user turn. It reports whether anything was written. The stored
// context keeps every pair until Reset; only Recent windows it.
func (s *ConversationStore) Append(gameKey, user, assistant string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.load(gameKey)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			if msgs[i].Content == user {
				return false, nil
			}
			break
		}
	}
	msgs = append(msgs,
		Message{Role: RoleUser, Content: user},
		Message{Role: RoleAssistant, Content: assistant},
	)
	if err := writeDoc(s.Path(gameKey), msgs); err != nil {
		return false, err
	}
	return true, nil
}

// Reset forgets all context for gameKey.
func (s *ConversationStore) Reset(gameKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeDoc(s.Path(gameKey))
}
