package telegram

import (
	"context"
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Tsauerd/vibropress-assistant-front/internal/api"
	"github.com/Tsauerd/vibropress-assistant-front/internal/chat"
	"github.com/Tsauerd/vibropress-assistant-front/internal/feedback"
	"github.com/Tsauerd/vibropress-assistant-front/internal/modes"
	"github.com/Tsauerd/vibropress-assistant-front/internal/storage"
)

const welcomeText = "Здравствуйте! Я <b>VibroPress AI</b> — ваш интеллектуальный помощник.\n\n" +
	"Выберите режим работы (/mode) и задайте вопрос. Я помогу найти информацию в базе знаний."

// Source buttons stay tappable on old answers, so cited sources are kept per
// answer, bounded to the most recent replies.
const maxRememberedReplies = 20

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	svc         *chat.Service
	feedback    *feedback.Service
	recorder    storage.Recorder
	parseMode   string
	adminUserID int64

	mu           sync.Mutex
	replySources map[string][]api.Source
	replyOrder   []string
}

func New(botToken string, svc *chat.Service, fb *feedback.Service, recorder storage.Recorder, adminUserID int64, parseMode string) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Bot{
		api:          botAPI,
		s:            botAPISender{api: botAPI},
		svc:          svc,
		feedback:     fb,
		recorder:     recorder,
		parseMode:    parseMode,
		adminUserID:  adminUserID,
		replySources: make(map[string][]api.Source),
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message != nil {
			b.handleIncomingMessage(ctx, update.Message)
			continue
		}
		if update.CallbackQuery != nil {
			b.handleCallback(ctx, update.CallbackQuery)
			continue
		}
	}
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	log.Printf("Incoming message from %d (@%s): %q", msg.From.ID, msg.From.UserName, msg.Text)
	b.processTurn(ctx, msg.Chat.ID, msg.Text)
}

func (b *Bot) processTurn(ctx context.Context, chatID int64, text string) {
	// Telegram has no persistent typing state, the action is re-sent by
	// clients for ~5s which covers the common case.
	if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.Printf("failed to send typing action: %v", err)
	}

	reply, err := b.svc.Send(ctx, chatID, text)
	if err != nil {
		if err == chat.ErrEmptyMessage || err == chat.ErrBusy {
			return
		}
		b.sendHTML(chatID, chat.ErrorGuidance(err))
		return
	}

	b.rememberSources(reply.MessageID, reply.Sources)

	out := reply.AnswerHTML
	if reply.IsComplaint {
		out += "\n\n🛠 <b>Работа с претензией</b>"
	}
	if reply.SourcesHTML != "" {
		out += "\n\n" + reply.SourcesHTML
	}
	if reply.EntitiesHTML != "" {
		out += "\n\n" + reply.EntitiesHTML
	}

	msgOut := tgbotapi.NewMessage(chatID, out)
	msgOut.ParseMode = b.parseMode
	msgOut.ReplyMarkup = answerKeyboard(reply.MessageID, len(reply.Sources))
	if _, err := b.s.Send(msgOut); err != nil {
		log.Printf("failed to send message: %v", err)
	}

	for _, p := range reply.Photos {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: p.Name, Bytes: p.Data})
		photo.Caption = p.Caption
		if _, err := b.s.Send(photo); err != nil {
			log.Printf("failed to send photo %s: %v", p.Name, err)
		}
	}
}

// answerKeyboard builds the rating row plus one row per cited source.
func answerKeyboard(messageID string, sources int) tgbotapi.InlineKeyboardMarkup {
	rating := make([]tgbotapi.InlineKeyboardButton, 0, 6)
	for n := 0; n <= 5; n++ {
		rating = append(rating, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d", n), fmt.Sprintf("rate:%d:%s", n, messageID)))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{rating}
	for i := 0; i < sources; i++ {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("📄 Подробнее %d", i+1), fmt.Sprintf("src:%s:%d", messageID, i)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🔗 Документ %d", i+1), fmt.Sprintf("doc:%s:%d", messageID, i)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func modeKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range modes.All() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(m.Name(), "mode:"+string(m)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.parseMode
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

// rememberSources files an answer's citations under its message id so the
// expand/preview buttons keep resolving against the answer they belong to,
// not whatever was cited last. Oldest replies are evicted first.
func (b *Bot) rememberSources(messageID string, srcs []api.Source) {
	if messageID == "" || len(srcs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.replySources[messageID]; !ok {
		b.replyOrder = append(b.replyOrder, messageID)
		if len(b.replyOrder) > maxRememberedReplies {
			evicted := b.replyOrder[0]
			b.replyOrder = b.replyOrder[1:]
			delete(b.replySources, evicted)
		}
	}
	b.replySources[messageID] = srcs
}

func (b *Bot) sourceFor(messageID string, idx int) (api.Source, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	srcs, ok := b.replySources[messageID]
	if !ok || idx < 0 || idx >= len(srcs) {
		return api.Source{}, false
	}
	return srcs[idx], true
}
