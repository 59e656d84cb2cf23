// Package feedback хранит оценки ответов (0–5) локально и зеркалирует их
// на бэкенд по принципу best-effort: неудачная отправка логируется и не
// откатывает локальную запись.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Tsauerd/vibropress-assistant-front/internal/api"
)

// Rating is one stored score for a bot message. Re-rating overwrites.
type Rating struct {
	Rating    int       `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
	ChatID    int64     `json:"chat_id"`
}

// Store persists the messageID -> Rating map as one JSON file.
type Store struct {
	path string

	mu      sync.Mutex
	ratings map[string]Rating
}

func NewStore(path string) (*Store, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure ratings dir: %w", err)
		}
	}
	s := &Store{path: path, ratings: make(map[string]Rating)}
	s.load()
	return s, nil
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var ratings map[string]Rating
	if err := json.Unmarshal(b, &ratings); err != nil {
		log.Printf("feedback: reset malformed ratings store: %v", err)
		return
	}
	s.ratings = ratings
}

// Put stores the rating for messageID, replacing any previous value.
func (s *Store) Put(messageID string, r Rating) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings[messageID] = r
	s.persist()
}

func (s *Store) Get(messageID string) (Rating, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[messageID]
	return r, ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ratings)
}

func (s *Store) persist() {
	if s.path == "" {
		return
	}
	b, err := json.Marshal(s.ratings)
	if err != nil {
		log.Printf("feedback: encode ratings: %v", err)
		return
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		log.Printf("feedback: persist ratings: %v", err)
	}
}

// Submitter is the server side of feedback; *api.Client satisfies it.
type Submitter interface {
	SubmitFeedback(ctx context.Context, req api.FeedbackRequest) error
}

type Service struct {
	store     *Store
	submitter Submitter
	sessionID func() string
}

func NewService(store *Store, submitter Submitter, sessionID func() string) *Service {
	return &Service{store: store, submitter: submitter, sessionID: sessionID}
}

// Rate records the score locally first, then mirrors it to the feedback
// endpoint. The server result never affects what the user already sees: a
// failure is logged, not retried, not rolled back.
func (s *Service) Rate(ctx context.Context, chatID int64, messageID string, rating int, comment string) Rating {
	r := Rating{Rating: rating, Timestamp: time.Now().UTC(), ChatID: chatID}
	s.store.Put(messageID, r)

	if s.submitter == nil {
		return r
	}
	err := s.submitter.SubmitFeedback(ctx, api.FeedbackRequest{
		MessageID: messageID,
		Rating:    rating,
		SessionID: s.sessionID(),
		Timestamp: r.Timestamp.Format(time.RFC3339),
		Comment:   comment,
	})
	if err != nil {
		log.Printf("⚠️ feedback: server submit failed for %s: %v", messageID, err)
	}
	return r
}

// Get returns the stored rating for a message, if any.
func (s *Service) Get(messageID string) (Rating, bool) {
	return s.store.Get(messageID)
}
