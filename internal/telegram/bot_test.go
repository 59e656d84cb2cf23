package telegram

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Tsauerd/vibropress-assistant-front/internal/api"
	"github.com/Tsauerd/vibropress-assistant-front/internal/chat"
	"github.com/Tsauerd/vibropress-assistant-front/internal/feedback"
	"github.com/Tsauerd/vibropress-assistant-front/internal/history"
	"github.com/Tsauerd/vibropress-assistant-front/internal/modes"
	"github.com/Tsauerd/vibropress-assistant-front/internal/render"
	"github.com/Tsauerd/vibropress-assistant-front/internal/session"
	"github.com/Tsauerd/vibropress-assistant-front/internal/storage"
)

type fakeSender struct {
	sent    []tgbotapi.Chattable
	actions []string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	switch v := c.(type) {
	case tgbotapi.ChatActionConfig:
		f.actions = append(f.actions, v.Action)
	case tgbotapi.CallbackConfig:
		f.actions = append(f.actions, "callback:"+v.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) messages() []string {
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeBackend struct {
	resp api.ChatResponse
	err  error
	url  string
}

func (f *fakeBackend) SendChat(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error) {
	return f.resp, f.err
}

func (f *fakeBackend) Health(ctx context.Context) (api.HealthResponse, error) {
	if f.err != nil {
		return api.HealthResponse{}, f.err
	}
	return api.HealthResponse{Status: "healthy"}, nil
}

func (f *fakeBackend) ResolveDocumentURL(ctx context.Context, filename string) (string, error) {
	return f.url, f.err
}

func newTestBot(t *testing.T, backend *fakeBackend) (*Bot, *fakeSender) {
	t.Helper()
	dir := t.TempDir()
	store, err := history.NewStore(filepath.Join(dir, "history.json"))
	if err != nil {
		t.Fatalf("history store: %v", err)
	}
	recorder, err := storage.NewFileRecorder(filepath.Join(dir, "log.jsonl"))
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	sess := session.NewManager(filepath.Join(dir, "session.txt"))
	svc := chat.NewService(chat.Config{
		Backend:    backend,
		Session:    sess,
		Transcript: history.NewManager(),
		Store:      store,
		Recorder:   recorder,
		Formatter:  render.Formatter{},
		UseRAG:     true,
		MaxResults: 5,
		Timeout:    5 * time.Second,
	})
	ratings, err := feedback.NewStore(filepath.Join(dir, "ratings.json"))
	if err != nil {
		t.Fatalf("ratings store: %v", err)
	}
	fb := feedback.NewService(ratings, nil, sess.Current)
	fs := &fakeSender{}
	return &Bot{
		s:            fs,
		svc:          svc,
		feedback:     fb,
		recorder:     recorder,
		parseMode:    "HTML",
		adminUserID:  999,
		replySources: make(map[string][]api.Source),
	}, fs
}

func TestProcessTurn_SendsTypingThenAnswerWithKeyboard(t *testing.T) {
	backend := &fakeBackend{resp: api.ChatResponse{
		Response:  "Марка **М400** подходит.",
		MessageID: "msg_1",
		Sources:   []api.Source{{Title: "ГОСТ 6133-2019.pdf", Type: "gost"}},
	}}
	b, fs := newTestBot(t, backend)

	b.processTurn(context.Background(), 100, "Какая марка бетона?")

	if len(fs.actions) == 0 || fs.actions[0] != tgbotapi.ChatTyping {
		t.Fatalf("typing action not sent first: %+v", fs.actions)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fs.sent))
	}
	out := fs.sent[0].(tgbotapi.MessageConfig)
	if !strings.Contains(out.Text, "<b>М400</b>") {
		t.Fatalf("answer not formatted: %q", out.Text)
	}
	if !strings.Contains(out.Text, "ГОСТ 6133-2019") {
		t.Fatalf("sources block missing: %q", out.Text)
	}
	kb, ok := out.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("expected rating row plus 1 source row, got %+v", out.ReplyMarkup)
	}
	if got := *kb.InlineKeyboard[0][5].CallbackData; got != "rate:5:msg_1" {
		t.Fatalf("unexpected rating callback data: %q", got)
	}
}

func TestProcessTurn_FailureSendsGuidance(t *testing.T) {
	backend := &fakeBackend{err: &api.HTTPError{Status: 500, Body: "boom"}}
	b, fs := newTestBot(t, backend)

	b.processTurn(context.Background(), 100, "вопрос")

	msgs := fs.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "HTTP 500") {
		t.Fatalf("guidance not sent: %+v", msgs)
	}
}

func TestProcessTurn_EmptyMessageIsSilent(t *testing.T) {
	b, fs := newTestBot(t, &fakeBackend{})
	b.processTurn(context.Background(), 100, "   ")
	if len(fs.sent) != 0 {
		t.Fatalf("expected no messages, got %d", len(fs.sent))
	}
}

func TestModeCallback_SwitchesModeAndShowsExamples(t *testing.T) {
	b, fs := newTestBot(t, &fakeBackend{})

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "mode:recipes",
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 100}},
	}
	b.handleCallback(context.Background(), cb)

	if got := b.svc.Mode(100); got != modes.Recipes {
		t.Fatalf("mode not switched: %q", got)
	}
	msgs := fs.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Рецептуры") {
		t.Fatalf("switch notice missing: %+v", msgs)
	}
	for _, ex := range modes.Recipes.Examples() {
		if !strings.Contains(msgs[0], ex) {
			t.Fatalf("example prompt %q missing from notice %q", ex, msgs[0])
		}
	}
}

func TestRatingCallback_StoresRatingAndReplacesKeyboard(t *testing.T) {
	b, fs := newTestBot(t, &fakeBackend{})

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "rate:4:msg_abc",
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 100}},
	}
	b.handleCallback(context.Background(), cb)

	r, ok := b.feedback.Get("msg_abc")
	if !ok || r.Rating != 4 {
		t.Fatalf("rating not stored: %+v ok=%v", r, ok)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("expected keyboard edit, got %d sends", len(fs.sent))
	}
	edit, ok := fs.sent[0].(tgbotapi.EditMessageReplyMarkupConfig)
	if !ok {
		t.Fatalf("expected reply markup edit, got %T", fs.sent[0])
	}
	btn := edit.ReplyMarkup.InlineKeyboard[0][0]
	if !strings.Contains(btn.Text, "(4/5)") {
		t.Fatalf("thank-you stub missing rating: %q", btn.Text)
	}
}

func TestSourceCallbacks_ExpandAndResolveDocument(t *testing.T) {
	backend := &fakeBackend{url: "https://drive.google.com/file/d/abc123/view"}
	b, fs := newTestBot(t, backend)
	b.rememberSources("msg_1", []api.Source{{Title: "ГОСТ 6133-2019.pdf", Type: "gost", Score: 0.92}})

	msg := &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 100}}
	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "c1", Data: "src:msg_1:0", Message: msg})
	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "c2", Data: "doc:msg_1:0", Message: msg})

	msgs := fs.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected detail + link, got %+v", msgs)
	}
	if !strings.Contains(msgs[0], "Релевантность: 0.92") {
		t.Fatalf("detail view missing score: %q", msgs[0])
	}
	if !strings.Contains(msgs[1], "drive.google.com/file/d/abc123") {
		t.Fatalf("document link missing: %q", msgs[1])
	}
}

func TestSourceExpand_ResolvesAgainstOwnAnswer(t *testing.T) {
	backend := &fakeBackend{resp: api.ChatResponse{
		Response:  "Ответ первый.",
		MessageID: "msg_1",
		Sources:   []api.Source{{Title: "ГОСТ 6133-2019.pdf", Type: "gost"}},
	}}
	b, fs := newTestBot(t, backend)
	b.processTurn(context.Background(), 100, "первый вопрос")

	backend.resp = api.ChatResponse{
		Response:  "Ответ второй.",
		MessageID: "msg_2",
		Sources:   []api.Source{{Title: "СП 78.13330.pdf", Type: "gost"}},
	}
	b.processTurn(context.Background(), 100, "второй вопрос")

	firstKb := fs.sent[0].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	data := *firstKb.InlineKeyboard[1][0].CallbackData
	if data != "src:msg_1:0" {
		t.Fatalf("expand button not bound to its answer: %q", data)
	}

	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID: "c1", Data: data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 100}},
	})
	msgs := fs.messages()
	detail := msgs[len(msgs)-1]
	if !strings.Contains(detail, "ГОСТ 6133-2019") {
		t.Fatalf("expected the first answer's source, got %q", detail)
	}
	if strings.Contains(detail, "СП 78.13330") {
		t.Fatalf("expand on the first answer rendered the second answer's source: %q", detail)
	}
}

func TestSourceExpand_EvictedAnswerGetsUnavailableAck(t *testing.T) {
	b, fs := newTestBot(t, &fakeBackend{})
	for i := 0; i <= maxRememberedReplies; i++ {
		b.rememberSources(fmt.Sprintf("msg_%d", i), []api.Source{{Title: "Документ.pdf"}})
	}

	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID: "c1", Data: "src:msg_0:0",
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 100}},
	})

	if len(fs.messages()) != 0 {
		t.Fatalf("evicted source must not render: %+v", fs.messages())
	}
	if len(fs.actions) != 1 || !strings.Contains(fs.actions[0], "недоступен") {
		t.Fatalf("expected unavailable ack, got %+v", fs.actions)
	}
}

func TestCallbackWithoutMessageDoesNotPanic(t *testing.T) {
	b, fs := newTestBot(t, &fakeBackend{})
	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "c1", Data: "rate:4:msg_1"})
	if len(fs.actions) != 1 || !strings.Contains(fs.actions[0], "устарела") {
		t.Fatalf("expected stale-button ack, got %+v", fs.actions)
	}
	if len(fs.sent) != 0 {
		t.Fatalf("no messages expected: %d", len(fs.sent))
	}
}

func TestRatingMirror_RunsWithBoundedDeadline(t *testing.T) {
	b, _ := newTestBot(t, &fakeBackend{})
	sub := &deadlineSubmitter{}
	b.feedback = feedback.NewService(feedbackStore(t), sub, func() string { return "s" })

	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID: "c1", Data: "rate:3:msg_1",
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: 100}},
	})

	if !sub.called {
		t.Fatal("server mirror not invoked")
	}
	if !sub.hadDeadline {
		t.Fatal("mirror context must carry a deadline")
	}
}

type deadlineSubmitter struct {
	called      bool
	hadDeadline bool
}

func (d *deadlineSubmitter) SubmitFeedback(ctx context.Context, req api.FeedbackRequest) error {
	d.called = true
	_, d.hadDeadline = ctx.Deadline()
	return nil
}

func feedbackStore(t *testing.T) *feedback.Store {
	t.Helper()
	s, err := feedback.NewStore(filepath.Join(t.TempDir(), "ratings.json"))
	if err != nil {
		t.Fatalf("ratings store: %v", err)
	}
	return s
}

func TestHistoryCommandAndClearFlow(t *testing.T) {
	b, fs := newTestBot(t, &fakeBackend{})
	store := b.svc.History()
	store.Append(history.Entry{ID: store.NextID(), Timestamp: time.Now(), Mode: "gost", UserMessage: "Какая марка бетона для дорожного бордюра?", BotAnswer: "М400"})

	b.handleCommand(context.Background(), &tgbotapi.Message{
		Text: "/history", Chat: &tgbotapi.Chat{ID: 100}, From: &tgbotapi.User{ID: 1},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 8}},
	})
	msgs := fs.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "Какая марка бетона") {
		t.Fatalf("history listing missing entry: %+v", msgs)
	}

	b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID: "c1", Data: "hist_clear_yes",
		Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: 100}},
	})
	if got := len(store.Entries()); got != 0 {
		t.Fatalf("history not cleared: %d entries", got)
	}
}

func TestReportCommand_AdminOnly(t *testing.T) {
	b, fs := newTestBot(t, &fakeBackend{})
	b.recorder.AppendInteraction(storage.Event{
		Timestamp: time.Now().UTC(), ChatID: 5, SessionID: "s", Mode: "gost",
		UserMessage: "вопрос", AssistantResponse: "ответ",
	})

	mk := func(userID int64) *tgbotapi.Message {
		return &tgbotapi.Message{
			Text: "/report", Chat: &tgbotapi.Chat{ID: 100}, From: &tgbotapi.User{ID: userID},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 7}},
		}
	}

	b.handleCommand(context.Background(), mk(1))
	msgs := fs.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "администратору") {
		t.Fatalf("non-admin not rejected: %+v", msgs)
	}

	b.handleCommand(context.Background(), mk(999))
	msgs = fs.messages()
	if len(msgs) != 2 || !strings.Contains(msgs[1], "Всего обращений") {
		t.Fatalf("report summary missing: %+v", msgs)
	}
}
