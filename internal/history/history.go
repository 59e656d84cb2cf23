package history

import (
	"sync"

	"github.com/Tsauerd/vibropress-assistant-front/internal/api"
)

// Manager holds the in-memory conversation transcript per chat. Turns are
// append-only and sent as context with every request; Reset drops them when
// the user starts a new chat.
type Manager struct {
	mu    sync.RWMutex
	chats map[int64][]api.Message
}

func NewManager() *Manager {
	return &Manager{chats: make(map[int64][]api.Message)}
}

func (m *Manager) Reset(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, chatID)
}

func (m *Manager) AppendUser(chatID int64, content string) {
	m.append(chatID, api.Message{Role: "user", Content: content})
}

func (m *Manager) AppendAssistant(chatID int64, content string) {
	m.append(chatID, api.Message{Role: "assistant", Content: content})
}

func (m *Manager) append(chatID int64, msg api.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chatID] = append(m.chats[chatID], msg)
}

// Get returns a copy of the transcript in append order.
func (m *Manager) Get(chatID int64) []api.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.chats[chatID]
	out := make([]api.Message, len(msgs))
	copy(out, msgs)
	return out
}
