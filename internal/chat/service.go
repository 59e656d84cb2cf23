// Package chat связывает сессию, историю, рендеринг и API-клиент в один
// оркестратор диалога. Telegram-адаптер остаётся тонким: всё состояние
// диалога живёт здесь и тестируется без UI.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tsauerd/vibropress-assistant-front/internal/api"
	"github.com/Tsauerd/vibropress-assistant-front/internal/history"
	"github.com/Tsauerd/vibropress-assistant-front/internal/modes"
	"github.com/Tsauerd/vibropress-assistant-front/internal/render"
	"github.com/Tsauerd/vibropress-assistant-front/internal/session"
	"github.com/Tsauerd/vibropress-assistant-front/internal/storage"
)

var (
	// ErrEmptyMessage: пустой ввод игнорируется молча, без сообщения об ошибке.
	ErrEmptyMessage = errors.New("empty message")
	// ErrBusy: в чате уже есть запрос в полёте; повторная отправка отклоняется.
	ErrBusy = errors.New("request already in flight")
)

// Backend is the assistant API surface the orchestrator needs;
// *api.Client satisfies it.
type Backend interface {
	SendChat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error)
	Health(ctx context.Context) (api.HealthResponse, error)
	ResolveDocumentURL(ctx context.Context, filename string) (string, error)
}

type Config struct {
	Backend    Backend
	Session    *session.Manager
	Transcript *history.Manager
	Store      *history.Store
	Recorder   storage.Recorder
	Formatter  render.Formatter
	UseRAG     bool
	MaxResults int
	Timeout    time.Duration
}

type Service struct {
	backend    Backend
	session    *session.Manager
	transcript *history.Manager
	store      *history.Store
	recorder   storage.Recorder
	formatter  render.Formatter
	useRAG     bool
	maxResults int
	timeout    time.Duration

	mu       sync.Mutex
	mode     map[int64]modes.Mode
	inFlight map[int64]bool

	online atomic.Bool
}

func NewService(cfg Config) *Service {
	return &Service{
		backend:    cfg.Backend,
		session:    cfg.Session,
		transcript: cfg.Transcript,
		store:      cfg.Store,
		recorder:   cfg.Recorder,
		formatter:  cfg.Formatter,
		useRAG:     cfg.UseRAG,
		maxResults: cfg.MaxResults,
		timeout:    cfg.Timeout,
		mode:       make(map[int64]modes.Mode),
		inFlight:   make(map[int64]bool),
	}
}

// Reply is everything the UI adapter needs to present one assistant answer.
type Reply struct {
	AnswerHTML   string
	SourcesHTML  string
	EntitiesHTML string
	Photos       []render.Photo
	Sources      []api.Source
	MessageID    string
	IsComplaint  bool
}

// Send runs one user turn: Idle -> Sending -> {Rendered|Failed} -> Idle.
// Only one turn per chat may be in flight; the in-flight flag is cleared on
// every path so a failure never leaves the chat stuck in Sending.
func (s *Service) Send(ctx context.Context, chatID int64, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.inFlight[chatID] {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.inFlight[chatID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, chatID)
		s.mu.Unlock()
	}()

	mode := s.Mode(chatID)
	s.transcript.AppendUser(chatID, text)

	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.backend.SendChat(reqCtx, api.ChatRequest{
		Messages:   s.transcript.Get(chatID),
		UseRAG:     s.useRAG,
		MaxResults: s.maxResults,
		SessionID:  s.session.Current(),
		Mode:       string(mode),
	})
	if err != nil {
		log.Printf("chat: turn failed for %d: %v", chatID, err)
		return nil, err
	}

	messageID := resp.MessageID
	if messageID == "" {
		// Every rateable answer needs a stable id even when the server
		// did not issue one.
		messageID = "msg_" + uuid.NewString()
	}

	s.transcript.AppendAssistant(chatID, resp.Response)
	now := time.Now().UTC()
	s.store.Append(history.Entry{
		ID:          s.store.NextID(),
		Timestamp:   now,
		Mode:        string(mode),
		UserMessage: text,
		BotAnswer:   resp.Response,
	})
	if s.recorder != nil {
		_ = s.recorder.AppendInteraction(storage.Event{
			Timestamp:         now,
			ChatID:            chatID,
			SessionID:         s.session.Current(),
			Mode:              string(mode),
			MessageID:         messageID,
			UserMessage:       text,
			AssistantResponse: resp.Response,
		})
	}

	return &Reply{
		AnswerHTML:   s.formatter.FormatAnswer(resp.Response),
		SourcesHTML:  render.FormatSources(resp.Sources),
		EntitiesHTML: render.FormatEntities(resp.Entities),
		Photos:       render.BuildImages(resp.Images),
		Sources:      resp.Sources,
		MessageID:    messageID,
		IsComplaint:  resp.IsComplaint || mode == modes.Defects,
	}, nil
}

// NewChat drops the transcript and rotates the session id. Entries already
// persisted in the history store stay untouched.
func (s *Service) NewChat(chatID int64) string {
	s.transcript.Reset(chatID)
	return s.session.Rotate()
}

func (s *Service) SessionID() string { return s.session.Current() }

func (s *Service) Mode(chatID int64) modes.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.mode[chatID]; ok {
		return m
	}
	return modes.Default
}

func (s *Service) SetMode(chatID int64, m modes.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode[chatID] = m
}

// History exposes the persisted exchange log for browsing.
func (s *Service) History() *history.Store { return s.store }

// ProbeHealth pings the backend and records connectivity for /status.
func (s *Service) ProbeHealth(ctx context.Context) error {
	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	hr, err := s.backend.Health(reqCtx)
	s.online.Store(err == nil)
	if err != nil {
		return err
	}
	log.Printf("✅ Backend reachable, status=%q", hr.Status)
	return nil
}

func (s *Service) Online() bool { return s.online.Load() }

// ResolveDocumentURL maps a source document to a Drive preview link.
func (s *Service) ResolveDocumentURL(ctx context.Context, filename string) (string, error) {
	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	id, err := s.backend.ResolveDocumentURL(reqCtx, filename)
	if err != nil || id == "" {
		return "", err
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", id), nil
}

// ErrorGuidance turns a failed turn into an inline chat message. Network
// failures get the cold-start explanation instead of a raw error dump.
func ErrorGuidance(err error) string {
	var he *api.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprintf("⚠️ Сервер ответил ошибкой (HTTP %d). Попробуйте переформулировать вопрос или повторить позже.", he.Status)
	}
	var ce *api.ContractError
	if errors.As(err, &ce) {
		return "⚠️ Получен неожиданный ответ от сервера. Попробуйте ещё раз."
	}
	return "⚠️ Не удалось подключиться к серверу.\n\n" +
		"Это может быть связано с:\n" +
		"1. Холодным стартом (первый запрос после простоя занимает ~30-60 сек)\n" +
		"2. Проблемами с сетью\n\n" +
		"Попробуйте ещё раз через минуту."
}
