// Package session выдаёт стабильный идентификатор сессии, по которому
// бэкенд группирует обращения одного пользователя.
package session

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const idPrefix = "session_"

// Manager keeps one session id persisted in a flat file. If the file is
// unwritable the id lives in memory only for this run.
type Manager struct {
	path string

	mu sync.Mutex
	id string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Current returns the persisted session id, generating and persisting a new
// one on first use.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id != "" {
		return m.id
	}
	if s := readTrim(m.path); s != "" {
		m.id = s
		return m.id
	}
	m.id = newID()
	m.persist()
	return m.id
}

// Rotate issues a fresh session id for a new chat. Data persisted under the
// previous id is retained, not garbage-collected.
func (m *Manager) Rotate() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = newID()
	m.persist()
	return m.id
}

func (m *Manager) persist() {
	if m.path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		log.Printf("session: ensure dir: %v", err)
		return
	}
	if err := os.WriteFile(m.path, []byte(m.id+"\n"), 0o644); err != nil {
		log.Printf("session: persist id: %v", err)
	}
}

// newID is prefix + timestamp + short random suffix. Unique enough for a
// single client; not a cryptographic token.
func newID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%d_%s", idPrefix, time.Now().UnixMilli(), suffix)
}

func readTrim(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
