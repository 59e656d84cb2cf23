package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/Tsauerd/vibropress-assistant-front/internal/api"
	"github.com/Tsauerd/vibropress-assistant-front/internal/chat"
	"github.com/Tsauerd/vibropress-assistant-front/internal/config"
	"github.com/Tsauerd/vibropress-assistant-front/internal/feedback"
	"github.com/Tsauerd/vibropress-assistant-front/internal/history"
	"github.com/Tsauerd/vibropress-assistant-front/internal/render"
	"github.com/Tsauerd/vibropress-assistant-front/internal/scheduler"
	"github.com/Tsauerd/vibropress-assistant-front/internal/session"
	"github.com/Tsauerd/vibropress-assistant-front/internal/storage"
	"github.com/Tsauerd/vibropress-assistant-front/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	for _, p := range []string{cfg.SessionFilePath, cfg.HistoryFilePath, cfg.RatingsFilePath, cfg.LogFilePath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("failed to create data dir %s: %v", dir, err)
			}
		}
	}

	store, err := history.NewStore(cfg.HistoryFilePath)
	if err != nil {
		log.Fatalf("failed to init history store: %v", err)
	}

	ratings, err := feedback.NewStore(cfg.RatingsFilePath)
	if err != nil {
		log.Fatalf("failed to init ratings store: %v", err)
	}

	recorder, err := storage.NewFileRecorder(cfg.LogFilePath)
	if err != nil {
		log.Fatalf("failed to init file recorder: %v", err)
	}

	sess := session.NewManager(cfg.SessionFilePath)
	client := api.New(cfg.APIBaseURL, cfg.RequestTimeout)

	svc := chat.NewService(chat.Config{
		Backend:    client,
		Session:    sess,
		Transcript: history.NewManager(),
		Store:      store,
		Recorder:   recorder,
		Formatter:  render.Formatter{},
		UseRAG:     cfg.UseRAG,
		MaxResults: cfg.MaxResults,
		Timeout:    cfg.RequestTimeout,
	})

	fb := feedback.NewService(ratings, client, sess.Current)

	bot, err := telegram.New(cfg.TelegramBotToken, svc, fb, recorder, cfg.AdminUserID, cfg.MessageParseMode)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	sched := scheduler.New(cfg.HealthProbeSpec, cfg.DailyReportSpec)
	sched.SetHealthFunc(svc.ProbeHealth)
	sched.SetReportFunc(bot.SendAdminReport)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	if err := svc.ProbeHealth(context.Background()); err != nil {
		log.Printf("⚠️ Backend not reachable at startup: %v", err)
	} else {
		log.Println("✅ Backend is healthy")
	}

	bot.Start(context.Background())
}
