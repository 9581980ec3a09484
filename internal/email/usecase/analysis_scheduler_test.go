package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"mailmind/internal/email/domain"
	"mailmind/internal/email/repository"
	"mailmind/pkg/ai"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type AnalysisSchedulerTestSuite struct {
	suite.Suite
	db           *gorm.DB
	messageRepo  repository.MessageRepository
	analysisRepo repository.AnalysisRepository
	attachRepo   repository.AttachmentRepository
}

func (s *AnalysisSchedulerTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.messageRepo = repository.NewMessageRepository(s.db)
	s.analysisRepo = repository.NewAnalysisRepository(s.db)
	s.attachRepo = repository.NewAttachmentRepository(s.db)
}

func TestAnalysisSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(AnalysisSchedulerTestSuite))
}

func (s *AnalysisSchedulerTestSuite) newScheduler(analyzer *fakeAnalyzer, batchSize, maxChars int) AnalysisUsecase {
	return NewAnalysisScheduler(s.messageRepo, s.analysisRepo, s.attachRepo,
		analyzer, testRetryPolicy(), batchSize, 2, maxChars, 3)
}

func (s *AnalysisSchedulerTestSuite) storeMessage(remoteID, body string) *domain.Message {
	msg := &domain.Message{
		ID:          uuid.New().String(),
		RemoteID:    remoteID,
		Sender:      "alice@example.com",
		Subject:     "subject " + remoteID,
		BodyText:    body,
		ReceivedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Fingerprint: domain.ComputeFingerprint(body, nil, false),
	}
	require.NoError(s.T(), s.db.Create(msg).Error)
	return msg
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_AnalyzesAllEligible() {
	for i := 0; i < 3; i++ {
		s.storeMessage(fmt.Sprintf("r-%d", i), "body")
	}
	analyzer := &fakeAnalyzer{}
	sched := s.newScheduler(analyzer, 2, 8000)

	stats, err := sched.RunBatch(context.Background(), 0)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, stats.Analyzed)
	assert.Zero(s.T(), stats.AnalysisFailed)
	assert.Equal(s.T(), 2, analyzer.calls, "batch size 2 splits 3 into 2 calls")

	var analyses []domain.Analysis
	s.db.Find(&analyses)
	require.Len(s.T(), analyses, 3)
	for _, a := range analyses {
		assert.Equal(s.T(), domain.AnalysisComplete, a.Status)
		for _, variant := range []string{
			domain.SummaryBrief, domain.SummaryDetailed,
			domain.SummaryBullet, domain.SummaryExecutive,
		} {
			assert.NotEmpty(s.T(), a.Summaries[variant], variant)
		}
		assert.GreaterOrEqual(s.T(), a.PriorityScore, domain.PriorityMin)
		assert.LessOrEqual(s.T(), a.PriorityScore, domain.PriorityMax)
	}
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_OneMissingResultFailsOnlyThatItem() {
	var victim *domain.Message
	for i := 0; i < 5; i++ {
		msg := s.storeMessage(fmt.Sprintf("r-%d", i), "body")
		if i == 2 {
			victim = msg
		}
	}
	analyzer := &fakeAnalyzer{omit: map[string]bool{victim.ID: true}}
	sched := s.newScheduler(analyzer, 5, 8000)

	stats, err := sched.RunBatch(context.Background(), 0)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), 4, stats.Analyzed)
	assert.Equal(s.T(), 1, stats.AnalysisFailed)
	assert.Equal(s.T(), 1, stats.Reasons["missing_result"])

	failed, err := s.analysisRepo.GetByMessageID(victim.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.AnalysisFailed, failed.Status)
	assert.Equal(s.T(), "missing_result", failed.FailReason)
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_TransientExhaustionMarksItemsFailed() {
	msg := s.storeMessage("r-1", "body")
	analyzer := &fakeAnalyzer{failFirst: 99, failWith: fmt.Errorf("ai: %w", domain.ErrTimeout)}
	sched := s.newScheduler(analyzer, 5, 8000)

	stats, err := sched.RunBatch(context.Background(), 0)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, stats.AnalysisFailed)
	assert.Equal(s.T(), 1, stats.Reasons["exhausted"])
	assert.Equal(s.T(), testRetryPolicy().MaxAttempts, analyzer.calls)

	failed, err := s.analysisRepo.GetByMessageID(msg.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.AnalysisFailed, failed.Status)
	assert.Equal(s.T(), 1, failed.Attempts)
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_TransientFailureThenSuccessRetriesInCall() {
	s.storeMessage("r-1", "body")
	analyzer := &fakeAnalyzer{failFirst: 1, failWith: fmt.Errorf("ai: %w", domain.ErrQuotaExceeded)}
	sched := s.newScheduler(analyzer, 5, 8000)

	stats, err := sched.RunBatch(context.Background(), 0)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, stats.Analyzed)
	assert.Equal(s.T(), 2, analyzer.calls)
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_CompletedCurrentMessageNotReanalyzed() {
	s.storeMessage("r-1", "body")
	analyzer := &fakeAnalyzer{}
	sched := s.newScheduler(analyzer, 5, 8000)

	_, err := sched.RunBatch(context.Background(), 0)
	require.NoError(s.T(), err)
	stats, err := sched.RunBatch(context.Background(), 0)
	require.NoError(s.T(), err)

	assert.Zero(s.T(), stats.Analyzed)
	assert.Zero(s.T(), stats.Skipped, "current messages are not even selected")
	assert.Equal(s.T(), 1, analyzer.calls)
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_StaleCompleteReanalyzed() {
	msg := s.storeMessage("r-1", "original body")
	analyzer := &fakeAnalyzer{}
	sched := s.newScheduler(analyzer, 5, 8000)
	_, err := sched.RunBatch(context.Background(), 0)
	require.NoError(s.T(), err)

	// content changed on resync: new fingerprint
	newBody := "edited body"
	require.NoError(s.T(), s.db.Model(&domain.Message{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{
			"body_text":   newBody,
			"fingerprint": domain.ComputeFingerprint(newBody, nil, false),
		}).Error)

	stats, err := sched.RunBatch(context.Background(), 0)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, stats.Analyzed)

	analysis, err := s.analysisRepo.GetByMessageID(msg.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.AnalysisComplete, analysis.Status)
	assert.Equal(s.T(), domain.ComputeFingerprint(newBody, nil, false), analysis.Fingerprint)
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_RespectsLimit() {
	for i := 0; i < 4; i++ {
		s.storeMessage(fmt.Sprintf("r-%d", i), "body")
	}
	analyzer := &fakeAnalyzer{}
	sched := s.newScheduler(analyzer, 5, 8000)

	stats, err := sched.RunBatch(context.Background(), 2)

	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, stats.Analyzed)
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_OverBudgetBodyTruncated() {
	msg := s.storeMessage("r-1", strings.Repeat("x", 500))
	analyzer := &fakeAnalyzer{}
	sched := s.newScheduler(analyzer, 5, 100)

	_, err := sched.RunBatch(context.Background(), 0)
	require.NoError(s.T(), err)

	analysis, err := s.analysisRepo.GetByMessageID(msg.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), analysis.InputTruncated)
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_TruncationNeverSplitsRune() {
	// multibyte runes positioned so a naive byte cut at the budget would
	// land mid-sequence
	s.storeMessage("r-1", strings.Repeat("é", 100))

	var captured []string
	analyzer := &fakeAnalyzer{}
	wrapped := analyzerFunc(func(ctx context.Context, reqs []ai.AnalysisRequest) ([]ai.AnalysisResult, error) {
		for _, r := range reqs {
			captured = append(captured, r.Body)
		}
		return analyzer.AnalyzeBatch(ctx, reqs)
	})
	sched := NewAnalysisScheduler(s.messageRepo, s.analysisRepo, s.attachRepo,
		wrapped, testRetryPolicy(), 5, 2, 101, 3)

	_, err := sched.RunBatch(context.Background(), 0)
	require.NoError(s.T(), err)

	require.Len(s.T(), captured, 1)
	assert.True(s.T(), utf8.ValidString(captured[0]))
	assert.Equal(s.T(), 100, len(captured[0]), "cut backs off to the rune boundary")
}

func (s *AnalysisSchedulerTestSuite) TestRunBatch_AttachmentPreviewsIncluded() {
	msg := s.storeMessage("r-1", "see attachment")
	_, err := s.attachRepo.InsertIfAbsent(&domain.Attachment{
		MessageID:   msg.ID,
		Filename:    "notes.txt",
		ContentHash: "h1",
		Status:      domain.AttachmentExtracted,
		Preview:     "meeting notes from tuesday",
	})
	require.NoError(s.T(), err)

	var captured []string
	analyzer := &fakeAnalyzer{}
	wrapped := analyzerFunc(func(ctx context.Context, reqs []ai.AnalysisRequest) ([]ai.AnalysisResult, error) {
		for _, r := range reqs {
			captured = append(captured, r.AttachmentText)
		}
		return analyzer.AnalyzeBatch(ctx, reqs)
	})
	sched := NewAnalysisScheduler(s.messageRepo, s.analysisRepo, s.attachRepo,
		wrapped, testRetryPolicy(), 5, 2, 8000, 3)

	_, err = sched.RunBatch(context.Background(), 0)
	require.NoError(s.T(), err)

	require.Len(s.T(), captured, 1)
	assert.Contains(s.T(), captured[0], "meeting notes from tuesday")
}
