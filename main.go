package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	api "mailmind/cmd/api"
	emaildomain "mailmind/internal/email/domain"
	emailRepo "mailmind/internal/email/repository"
	emailUsecase "mailmind/internal/email/usecase"
	"mailmind/pkg/ai"
	"mailmind/pkg/config"
	"mailmind/pkg/database"
	"mailmind/pkg/extract"
	"mailmind/pkg/gmail"
	"mailmind/pkg/imap"
	"mailmind/pkg/retry"

	"golang.org/x/oauth2"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	messageRepo := emailRepo.NewMessageRepository(db)
	attachRepo := emailRepo.NewAttachmentRepository(db)
	analysisRepo := emailRepo.NewAnalysisRepository(db)
	syncStateRepo := emailRepo.NewSyncStateRepository(db)

	// Initialize mailbox provider
	provider, err := newMailboxProvider(cfg)
	if err != nil {
		log.Fatal("Failed to initialize mailbox provider:", err)
	}

	// Initialize AI analyzer
	analyzer, err := ai.NewAnalyzerService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiModel:   cfg.GeminiModel,
		OllamaBaseURL: cfg.OllamaURL,
		OllamaModel:   cfg.OllamaModel,
	})
	if err != nil {
		log.Fatal("Failed to initialize AI analyzer:", err)
	}
	log.Printf("AI analyzer initialized with provider: %s", cfg.AIProvider)

	retryPolicy := retry.Policy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}

	// Initialize use cases (dependency injection)
	syncUc := emailUsecase.NewSyncUsecase(provider, messageRepo, attachRepo,
		syncStateRepo, extract.New(0), retryPolicy, cfg.FetchParallelism, 2)
	analysisUc := emailUsecase.NewAnalysisScheduler(messageRepo, analysisRepo,
		attachRepo, analyzer, retryPolicy, cfg.AnalysisBatchSize,
		cfg.AnalysisWorkers, cfg.AnalysisMaxChars, cfg.MaxAttempts)
	pipelineUc := emailUsecase.NewPipeline(syncUc, analysisUc)
	queryUc := emailUsecase.NewQueryUsecase(messageRepo)

	// Initialize HTTP handler
	handler := api.NewHandler(syncUc, analysisUc, pipelineUc, queryUc, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// newMailboxProvider builds the configured provider. Gmail needs a stored
// oauth token (obtained out of band); IMAP needs plain credentials.
func newMailboxProvider(cfg *config.Config) (emaildomain.MailboxProvider, error) {
	switch cfg.Provider {
	case "imap":
		if cfg.IMAPAddr == "" || cfg.IMAPUsername == "" {
			return nil, fmt.Errorf("IMAP_ADDR and IMAP_USERNAME are required for the imap provider")
		}
		return imap.NewProvider(cfg.IMAPAddr, cfg.IMAPUsername, cfg.IMAPPassword,
			cfg.IMAPMailbox, cfg.SyncPageSize), nil

	case "gmail":
		token, err := loadToken(cfg.GmailTokenFile)
		if err != nil {
			return nil, fmt.Errorf("load gmail token: %w", err)
		}
		return gmail.NewProvider(context.Background(), cfg.GoogleClientID,
			cfg.GoogleClientSecret, token, cfg.SyncPageSize,
			func(t *oauth2.Token) error { return saveToken(cfg.GmailTokenFile, t) })

	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, err
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
