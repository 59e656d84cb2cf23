package telegram

import (
	"context"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Tsauerd/vibropress-assistant-front/internal/analytics"
	"github.com/Tsauerd/vibropress-assistant-front/internal/modes"
	"github.com/Tsauerd/vibropress-assistant-front/internal/render"
)

// feedbackTimeout bounds the best-effort server mirror of a rating.
const feedbackTimeout = 5 * time.Second

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		b.sendStart(ctx, chatID)
	case "new":
		id := b.svc.NewChat(chatID)
		log.Printf("🆕 Новый чат %d, session: %s", chatID, id)
		b.sendHTML(chatID, welcomeText)
	case "mode":
		out := tgbotapi.NewMessage(chatID, "Выберите режим работы:")
		out.ReplyMarkup = modeKeyboard()
		if _, err := b.s.Send(out); err != nil {
			log.Printf("failed to send mode keyboard: %v", err)
		}
	case "history":
		b.sendHistory(chatID)
	case "clear":
		out := tgbotapi.NewMessage(chatID, "Очистить всю историю диалогов?")
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Да, очистить", "hist_clear_yes"),
				tgbotapi.NewInlineKeyboardButtonData("Отмена", "hist_clear_no"),
			),
		)
		if _, err := b.s.Send(out); err != nil {
			log.Printf("failed to send clear confirmation: %v", err)
		}
	case "status":
		b.sendStatus(ctx, chatID)
	case "report":
		if msg.From.ID != b.adminUserID {
			b.sendMessage(chatID, "Команда доступна только администратору.")
			return
		}
		b.sendDailyReport(chatID)
	default:
		b.sendMessage(chatID, "Неизвестная команда. Доступны: /start /new /mode /history /clear /status")
	}
}

func (b *Bot) sendStart(ctx context.Context, chatID int64) {
	m := b.svc.Mode(chatID)
	var sb strings.Builder
	sb.WriteString(welcomeText)
	sb.WriteString(fmt.Sprintf("\n\nТекущий режим: <b>%s</b>\n", m.Name()))
	sb.WriteString(examplesBlock(m))
	if err := b.svc.ProbeHealth(ctx); err != nil {
		sb.WriteString("\n\n🟡 Сервер недоступен (возможно, холодный старт)")
	} else {
		sb.WriteString("\n\n🟢 Сервер доступен")
	}
	b.sendHTML(chatID, sb.String())
}

func (b *Bot) sendStatus(ctx context.Context, chatID int64) {
	status := "🟢 Сервер доступен"
	if err := b.svc.ProbeHealth(ctx); err != nil {
		status = "🟡 Сервер недоступен (возможно, холодный старт)"
	}
	b.sendHTML(chatID, fmt.Sprintf("%s\nРежим: <b>%s</b>\nСессия: <code>%s</code>",
		status, b.svc.Mode(chatID).Name(), b.svc.SessionID()))
}

// sendHistory shows the saved exchanges grouped by date, newest first, with
// a delete button per entry.
func (b *Bot) sendHistory(chatID int64) {
	groups := b.svc.History().ByDate()
	if len(groups) == 0 {
		b.sendMessage(chatID, "История пуста.")
		return
	}
	var sb strings.Builder
	sb.WriteString("📒 <b>История диалогов</b>\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, g := range groups {
		sb.WriteString(fmt.Sprintf("\n<b>%s</b>\n", g.Date))
		for _, e := range g.Entries {
			sb.WriteString(fmt.Sprintf("• %s\n", html.EscapeString(render.Truncate(e.UserMessage, 50))))
			if len(rows) < 10 {
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(
						"🗑 "+render.Truncate(e.UserMessage, 30),
						fmt.Sprintf("hist_del:%d", e.ID)),
				))
			}
		}
	}
	out := tgbotapi.NewMessage(chatID, sb.String())
	out.ParseMode = b.parseMode
	if len(rows) > 0 {
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.s.Send(out); err != nil {
		log.Printf("failed to send history: %v", err)
	}
}

// SendAdminReport delivers the daily usage summary to the configured admin.
// Used by the scheduler's nightly job.
func (b *Bot) SendAdminReport(ctx context.Context) error {
	if b.adminUserID == 0 {
		return nil
	}
	b.sendDailyReport(b.adminUserID)
	return nil
}

func (b *Bot) sendDailyReport(chatID int64) {
	events, err := b.recorder.LoadInteractions()
	if err != nil {
		log.Printf("⚠️ report: load interactions failed: %v", err)
		b.sendMessage(chatID, "Не удалось загрузить журнал диалогов.")
		return
	}
	stats := analytics.AnalyzeDailyLogs(events, time.Now().UTC())
	b.sendMessage(chatID, stats.GenerateReportSummary())
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Telegram omits Message for callbacks against messages older than ~48h,
	// and keyboards on old answers stay tappable forever.
	if cb.Message == nil {
		if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "Кнопка устарела")); err != nil {
			log.Printf("failed to answer callback: %v", err)
		}
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	ack := ""

	switch {
	case strings.HasPrefix(data, "mode:"):
		key := strings.TrimPrefix(data, "mode:")
		if !modes.Valid(key) {
			ack = "Неизвестный режим"
			break
		}
		m := modes.Mode(key)
		b.svc.SetMode(chatID, m)
		b.sendHTML(chatID, fmt.Sprintf("Режим изменён на <b>%s</b>. Можете задать вопрос!\n%s",
			m.Name(), examplesBlock(m)))

	case strings.HasPrefix(data, "rate:"):
		ack = b.handleRating(ctx, cb)

	case strings.HasPrefix(data, "src:"):
		msgID, idx, ok := parseSourceRef(strings.TrimPrefix(data, "src:"))
		if !ok {
			break
		}
		if src, ok := b.sourceFor(msgID, idx); ok {
			b.sendHTML(chatID, render.FormatSourceDetail(src))
		} else {
			ack = "Источник больше недоступен"
		}

	case strings.HasPrefix(data, "doc:"):
		msgID, idx, ok := parseSourceRef(strings.TrimPrefix(data, "doc:"))
		if !ok {
			break
		}
		src, ok := b.sourceFor(msgID, idx)
		if !ok {
			ack = "Источник больше недоступен"
			break
		}
		url, err := b.svc.ResolveDocumentURL(ctx, src.Title)
		if err != nil || url == "" {
			b.sendMessage(chatID, "Предпросмотр документа недоступен.")
			break
		}
		b.sendHTML(chatID, fmt.Sprintf("🔗 <a href=\"%s\">%s</a>", url,
			html.EscapeString(render.FormatSourceName(src.Title))))

	case strings.HasPrefix(data, "hist_del:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, "hist_del:"), 10, 64)
		if err != nil {
			break
		}
		b.svc.History().Remove(id)
		ack = "Запись удалена"

	case data == "hist_clear_yes":
		b.svc.History().Clear()
		edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, "История очищена.")
		if _, err := b.s.Send(edit); err != nil {
			log.Printf("failed to edit clear confirmation: %v", err)
		}

	case data == "hist_clear_no":
		edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, "Очистка отменена.")
		if _, err := b.s.Send(edit); err != nil {
			log.Printf("failed to edit clear confirmation: %v", err)
		}
	}

	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
		log.Printf("failed to answer callback: %v", err)
	}
}

// handleRating records the rating and replaces the button rows with a
// thank-you stub so an answer can be rated once from the UI.
func (b *Bot) handleRating(ctx context.Context, cb *tgbotapi.CallbackQuery) string {
	parts := strings.SplitN(strings.TrimPrefix(cb.Data, "rate:"), ":", 2)
	if len(parts) != 2 {
		return ""
	}
	rating, err := strconv.Atoi(parts[0])
	if err != nil || rating < 0 || rating > 5 {
		return ""
	}
	messageID := parts[1]
	chatID := cb.Message.Chat.ID

	// The update loop is sequential; the server mirror must not hold it for
	// the full request timeout. The local store write is unaffected.
	rateCtx, cancel := context.WithTimeout(ctx, feedbackTimeout)
	defer cancel()
	b.feedback.Rate(rateCtx, chatID, messageID, rating, "")

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Спасибо за оценку! (%d/5)", rating), "noop"),
		),
	)
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, cb.Message.MessageID, kb)
	if _, err := b.s.Send(edit); err != nil {
		log.Printf("failed to edit rating keyboard: %v", err)
	}
	return "Спасибо!"
}

// parseSourceRef splits "msg_abc:2" into the message id and source index.
func parseSourceRef(s string) (string, int, bool) {
	i := strings.LastIndex(s, ":")
	if i <= 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, false
	}
	return s[:i], idx, true
}

func examplesBlock(m modes.Mode) string {
	var sb strings.Builder
	sb.WriteString("Примеры вопросов:")
	for _, ex := range m.Examples() {
		sb.WriteString("\n• " + html.EscapeString(ex))
	}
	return sb.String()
}
