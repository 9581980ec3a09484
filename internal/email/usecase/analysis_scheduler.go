package usecase

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"mailmind/internal/email/domain"
	"mailmind/internal/email/repository"
	"mailmind/pkg/ai"
	"mailmind/pkg/retry"

	"golang.org/x/sync/errgroup"
)

// AnalysisUsecase schedules AI analysis over stored messages
type AnalysisUsecase interface {
	// RunBatch analyzes up to limit eligible messages: never-analyzed ones,
	// retryable failures, and completed ones whose content changed since.
	// limit <= 0 means unbounded.
	RunBatch(ctx context.Context, limit int) (*domain.RunStats, error)
}

type analysisScheduler struct {
	messageRepo  repository.MessageRepository
	analysisRepo repository.AnalysisRepository
	attachRepo   repository.AttachmentRepository
	analyzer     ai.AnalyzerService
	retryPolicy  retry.Policy

	batchSize   int
	workers     int
	maxChars    int
	maxAttempts int
}

// NewAnalysisScheduler creates a new instance of analysisScheduler
func NewAnalysisScheduler(
	messageRepo repository.MessageRepository,
	analysisRepo repository.AnalysisRepository,
	attachRepo repository.AttachmentRepository,
	analyzer ai.AnalyzerService,
	retryPolicy retry.Policy,
	batchSize, workers, maxChars, maxAttempts int,
) AnalysisUsecase {
	if batchSize <= 0 {
		batchSize = 5
	}
	if workers <= 0 {
		workers = 3
	}
	if maxChars <= 0 {
		maxChars = 8000
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &analysisScheduler{
		messageRepo:  messageRepo,
		analysisRepo: analysisRepo,
		attachRepo:   attachRepo,
		analyzer:     analyzer,
		retryPolicy:  retryPolicy,
		batchSize:    batchSize,
		workers:      workers,
		maxChars:     maxChars,
		maxAttempts:  maxAttempts,
	}
}

// claimedItem is one message we hold the analysis claim for
type claimedItem struct {
	msg       *domain.Message
	truncated bool
}

func (s *analysisScheduler) RunBatch(ctx context.Context, limit int) (*domain.RunStats, error) {
	stats := domain.NewRunStats()
	defer func() { stats.FinishedAt = time.Now() }()

	candidates, err := s.messageRepo.QueryAnalyzable(limit, s.maxAttempts)
	if err != nil {
		return stats, err
	}

	var claimed []claimedItem
	for i := range candidates {
		msg := &candidates[i]
		ok, err := s.analysisRepo.Claim(msg.ID, msg.Fingerprint)
		if err != nil {
			stats.RecordError("claim")
			continue
		}
		if !ok {
			// another worker holds it, or the result is already current
			stats.Skipped++
			continue
		}
		claimed = append(claimed, claimedItem{msg: msg})
	}

	if len(claimed) == 0 {
		return stats, nil
	}
	log.Printf("[Scheduler] Claimed %d messages for analysis", len(claimed))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for start := 0; start < len(claimed); start += s.batchSize {
		end := start + s.batchSize
		if end > len(claimed) {
			end = len(claimed)
		}
		batch := claimed[start:end]
		g.Go(func() error {
			s.runOneBatch(gctx, batch, stats, &mu)
			return gctx.Err()
		})
	}
	err = g.Wait()

	log.Printf("[Scheduler] Done: analyzed=%d failed=%d skipped=%d",
		stats.Analyzed, stats.AnalysisFailed, stats.Skipped)
	return stats, err
}

func (s *analysisScheduler) runOneBatch(ctx context.Context, batch []claimedItem, stats *domain.RunStats, mu *sync.Mutex) {
	requests := make([]ai.AnalysisRequest, 0, len(batch))
	for i := range batch {
		requests = append(requests, s.buildRequest(&batch[i]))
	}

	var results []ai.AnalysisResult
	err := retry.Do(ctx, s.retryPolicy, func() error {
		var callErr error
		results, callErr = s.analyzer.AnalyzeBatch(ctx, requests)
		return callErr
	})
	if err != nil {
		reason := "exhausted"
		if errors.Is(err, domain.ErrMalformedResponse) {
			reason = "malformed_response"
		}
		for _, item := range batch {
			s.failItem(item.msg.ID, reason, stats, mu)
		}
		log.Printf("[Scheduler] Batch of %d failed: %v", len(batch), err)
		return
	}

	byID := make(map[string]*ai.AnalysisResult, len(results))
	for i := range results {
		byID[results[i].ID] = &results[i]
	}

	for _, item := range batch {
		result, ok := byID[item.msg.ID]
		if !ok {
			// the model returned nothing usable for this one message
			s.failItem(item.msg.ID, "missing_result", stats, mu)
			continue
		}
		analysis := &domain.Analysis{
			Fingerprint:      item.msg.Fingerprint,
			Summaries:        domain.StringMap(result.Summaries),
			Sentiment:        result.Sentiment,
			PriorityScore:    result.PriorityScore,
			PriorityReason:   result.PriorityReason,
			KeyTopics:        domain.StringArray(result.KeyTopics),
			ActionItems:      domain.StringArray(result.ActionItems),
			SuggestedActions: domain.StringArray(result.SuggestedActions),
			ActionRequired:   result.ActionRequired,
			InputTruncated:   item.truncated,
		}
		if err := s.analysisRepo.Complete(item.msg.ID, analysis); err != nil {
			s.failItem(item.msg.ID, "commit", stats, mu)
			continue
		}
		mu.Lock()
		stats.Analyzed++
		mu.Unlock()
	}
}

func (s *analysisScheduler) failItem(messageID, reason string, stats *domain.RunStats, mu *sync.Mutex) {
	if err := s.analysisRepo.Fail(messageID, reason); err != nil {
		log.Printf("[Scheduler] Recording failure for %s: %v", messageID, err)
	}
	mu.Lock()
	stats.AnalysisFailed++
	stats.RecordError(reason)
	mu.Unlock()
}

// buildRequest assembles the analyzer input for one message, folding in
// attachment previews and enforcing the character budget
func (s *analysisScheduler) buildRequest(item *claimedItem) ai.AnalysisRequest {
	msg := item.msg

	var attText string
	if atts, err := s.attachRepo.ListByMessage(msg.ID); err == nil {
		var parts []string
		for _, att := range atts {
			if att.Status == domain.AttachmentExtracted && att.Preview != "" {
				parts = append(parts, att.Filename+": "+att.Preview)
			}
		}
		attText = strings.Join(parts, "\n")
	}

	body := msg.BodyText
	if len(body) > s.maxChars {
		body = truncateAtRune(body, s.maxChars)
		item.truncated = true
	}
	remaining := s.maxChars - len(body)
	if len(attText) > remaining {
		if remaining <= 0 {
			attText = ""
		} else {
			attText = truncateAtRune(attText, remaining)
		}
		item.truncated = true
	}

	return ai.AnalysisRequest{
		ID:             msg.ID,
		Subject:        msg.Subject,
		Sender:         msg.Sender,
		Body:           body,
		AttachmentText: attText,
	}
}

// truncateAtRune cuts s to at most max bytes without splitting a rune
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
