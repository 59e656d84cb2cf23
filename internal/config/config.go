package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER"`

	// Assistant backend
	APIBaseURL     string        `env:"API_BASE_URL" envDefault:"https://vibropress-assistant-backend.onrender.com"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"90s"`
	UseRAG         bool          `env:"USE_RAG" envDefault:"true"`
	MaxResults     int           `env:"MAX_RESULTS" envDefault:"5"`

	// Storage
	SessionFilePath string `env:"SESSION_FILE_PATH" envDefault:"data/session.txt"`
	HistoryFilePath string `env:"HISTORY_FILE_PATH" envDefault:"data/history.json"`
	RatingsFilePath string `env:"RATINGS_FILE_PATH" envDefault:"data/ratings.json"`
	LogFilePath     string `env:"LOG_FILE_PATH" envDefault:"logs/log.jsonl"`

	// Health probe / reporting
	HealthProbeSpec string `env:"HEALTH_PROBE_SPEC" envDefault:"@every 5m"`
	DailyReportSpec string `env:"DAILY_REPORT_SPEC" envDefault:"0 21 * * *"`

	// Formatting
	MessageParseMode string `env:"MESSAGE_PARSE_MODE" envDefault:"HTML"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
