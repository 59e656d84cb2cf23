package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Tsauerd/vibropress-assistant-front/internal/modes"
	"github.com/Tsauerd/vibropress-assistant-front/internal/storage"
)

// DailyStats содержит статистику использования ассистента за день
type DailyStats struct {
	Date        string              `json:"date"`
	TotalTurns  int                 `json:"total_turns"`
	UniqueChats int                 `json:"unique_chats"`
	TurnsByMode map[string]int      `json:"turns_by_mode"`
	ChatStats   map[int64]ChatStats `json:"chat_stats"`
}

// ChatStats содержит статистику по одному чату
type ChatStats struct {
	ChatID int64 `json:"chat_id"`
	Turns  int   `json:"turns"`
}

// AnalyzeDailyLogs анализирует журнал обращений за указанную дату
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:        startOfDay.Format("2006-01-02"),
		TurnsByMode: make(map[string]int),
		ChatStats:   make(map[int64]ChatStats),
	}

	uniqueChats := make(map[int64]bool)

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalTurns++
		uniqueChats[event.ChatID] = true
		if event.Mode != "" {
			stats.TurnsByMode[event.Mode]++
		}

		cs := stats.ChatStats[event.ChatID]
		cs.ChatID = event.ChatID
		cs.Turns++
		stats.ChatStats[event.ChatID] = cs
	}

	stats.UniqueChats = len(uniqueChats)
	return stats
}

// GenerateReportSummary создает текстовое резюме для администратора.
// Строки отсортированы, чтобы отчёты за соседние дни можно было сравнивать
// построчно.
func (ds *DailyStats) GenerateReportSummary() string {
	summary := fmt.Sprintf(`Статистика VibroPress AI за %s:

Общая активность:
- Всего обращений: %d
- Уникальных чатов: %d

`, ds.Date, ds.TotalTurns, ds.UniqueChats)

	if len(ds.TurnsByMode) > 0 {
		summary += "Обращения по режимам:\n"
		keys := make([]string, 0, len(ds.TurnsByMode))
		for k := range ds.TurnsByMode {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			summary += fmt.Sprintf("- %s: %d\n", modes.Mode(k).Name(), ds.TurnsByMode[k])
		}
		summary += "\n"
	}

	summary += fmt.Sprintf("Активность чатов (%d):\n", len(ds.ChatStats))
	chatIDs := make([]int64, 0, len(ds.ChatStats))
	for chatID := range ds.ChatStats {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, j int) bool { return chatIDs[i] < chatIDs[j] })
	for _, chatID := range chatIDs {
		summary += fmt.Sprintf("- Чат %d: %d обращений\n", chatID, ds.ChatStats[chatID].Turns)
	}

	return summary
}

// ToJSON сериализует статистику в JSON для детального анализа
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
