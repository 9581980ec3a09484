package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Mailbox provider
	Provider           string // "gmail" or "imap"
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GmailTokenFile     string
	IMAPAddr           string
	IMAPUsername       string
	IMAPPassword       string
	IMAPMailbox        string

	// Sync
	SyncWindowDays    int
	SyncPageSize      int
	FetchParallelism  int
	IncrementalSync   bool
	AttachmentWorkers int

	// Analysis
	AIProvider        string // "gemini", "ollama" or "auto"
	GeminiAPIKey      string
	GeminiModel       string
	OllamaURL         string
	OllamaModel       string
	AnalysisBatchSize int
	AnalysisWorkers   int
	AnalysisMaxChars  int
	MaxAttempts       int

	// Retry
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DatabaseDriver: getEnv("DB_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DB_DSN", "mailmind.db"),

		Provider:           getEnv("MAIL_PROVIDER", "gmail"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/api/auth/google/callback"),
		GmailTokenFile:     getEnv("GMAIL_TOKEN_FILE", "token.json"),
		IMAPAddr:           getEnv("IMAP_ADDR", ""),
		IMAPUsername:       getEnv("IMAP_USERNAME", ""),
		IMAPPassword:       getEnv("IMAP_PASSWORD", ""),
		IMAPMailbox:        getEnv("IMAP_MAILBOX", "INBOX"),

		SyncWindowDays:    getEnvInt("SYNC_WINDOW_DAYS", 7),
		SyncPageSize:      getEnvInt("SYNC_PAGE_SIZE", 100),
		FetchParallelism:  getEnvInt("FETCH_PARALLELISM", 5),
		IncrementalSync:   getEnvBool("INCREMENTAL_SYNC", true),
		AttachmentWorkers: getEnvInt("ATTACHMENT_WORKERS", 3),

		AIProvider:        getEnv("AI_PROVIDER", "auto"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3.2"),
		AnalysisBatchSize: getEnvInt("ANALYSIS_BATCH_SIZE", 5),
		AnalysisWorkers:   getEnvInt("ANALYSIS_WORKERS", 3),
		AnalysisMaxChars:  getEnvInt("ANALYSIS_MAX_CHARS", 8000),
		MaxAttempts:       getEnvInt("ANALYSIS_MAX_ATTEMPTS", 3),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 4),
		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:    getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
