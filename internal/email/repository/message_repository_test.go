package repository

import (
	"testing"
	"time"

	"mailmind/internal/email/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MessageRepositoryTestSuite is the test suite for MessageRepository
type MessageRepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo MessageRepository
}

// SetupSuite runs once before all tests
func (s *MessageRepositoryTestSuite) SetupSuite() {
	// Use in-memory SQLite for testing
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)

	// Enable foreign keys for SQLite (required for cascade delete)
	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(&domain.Message{}, &domain.Attachment{}, &domain.Analysis{}, &domain.SyncState{})
	require.NoError(s.T(), err)

	s.db = db
	s.repo = NewMessageRepository(db)
}

// TearDownSuite runs once after all tests
func (s *MessageRepositoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SetupTest runs before each test - clean up data
func (s *MessageRepositoryTestSuite) SetupTest() {
	s.db.Exec("DELETE FROM analyses")
	s.db.Exec("DELETE FROM attachments")
	s.db.Exec("DELETE FROM messages")
	s.db.Exec("DELETE FROM sync_states")
}

// TestMessageRepositoryTestSuite runs the test suite
func TestMessageRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(MessageRepositoryTestSuite))
}

func (s *MessageRepositoryTestSuite) newMessage(remoteID, body string, labels []string, isRead bool) *domain.Message {
	return &domain.Message{
		RemoteID:    remoteID,
		Sender:      "alice@example.com",
		SenderName:  "Alice",
		Recipients:  domain.StringArray{"bob@example.com"},
		Subject:     "Quarterly report",
		BodyText:    body,
		Labels:      domain.StringArray(labels),
		Category:    domain.MapLabelsToCategory(labels),
		IsRead:      isRead,
		ReceivedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Fingerprint: domain.ComputeFingerprint(body, labels, isRead),
	}
}

// ==================== Upsert Tests ====================

func (s *MessageRepositoryTestSuite) TestUpsert_CreatesNewMessage() {
	msg := s.newMessage("r-1", "hello", []string{"INBOX"}, false)

	created, changed, err := s.repo.Upsert(msg)

	require.NoError(s.T(), err)
	assert.True(s.T(), created)
	assert.False(s.T(), changed)
	assert.NotEmpty(s.T(), msg.ID)

	stored, err := s.repo.GetByRemoteID("r-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "hello", stored.BodyText)
	assert.Equal(s.T(), domain.CategoryInbox, stored.Category)
}

func (s *MessageRepositoryTestSuite) TestUpsert_SameFingerprintIsNoOp() {
	msg := s.newMessage("r-1", "hello", []string{"INBOX"}, false)
	_, _, err := s.repo.Upsert(msg)
	require.NoError(s.T(), err)
	firstID := msg.ID

	again := s.newMessage("r-1", "hello", []string{"INBOX"}, false)
	created, changed, err := s.repo.Upsert(again)

	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.False(s.T(), changed)
	assert.Equal(s.T(), firstID, again.ID)

	var count int64
	s.db.Model(&domain.Message{}).Count(&count)
	assert.Equal(s.T(), int64(1), count)
}

func (s *MessageRepositoryTestSuite) TestUpsert_ChangedFingerprintUpdatesInPlace() {
	msg := s.newMessage("r-1", "hello", []string{"INBOX"}, false)
	_, _, err := s.repo.Upsert(msg)
	require.NoError(s.T(), err)
	firstID := msg.ID

	// same message, now read
	updated := s.newMessage("r-1", "hello", []string{"INBOX"}, true)
	created, changed, err := s.repo.Upsert(updated)

	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.True(s.T(), changed)

	stored, err := s.repo.GetByRemoteID("r-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), firstID, stored.ID, "identity must survive updates")
	assert.True(s.T(), stored.IsRead)
	assert.Equal(s.T(), updated.Fingerprint, stored.Fingerprint)
}

func (s *MessageRepositoryTestSuite) TestUpsert_LabelOrderDoesNotChangeFingerprint() {
	msg := s.newMessage("r-1", "hello", []string{"INBOX", "IMPORTANT"}, false)
	_, _, err := s.repo.Upsert(msg)
	require.NoError(s.T(), err)

	reordered := s.newMessage("r-1", "hello", []string{"IMPORTANT", "INBOX"}, false)
	created, changed, err := s.repo.Upsert(reordered)

	require.NoError(s.T(), err)
	assert.False(s.T(), created)
	assert.False(s.T(), changed)
}

func (s *MessageRepositoryTestSuite) TestUpsert_MissingRemoteIDRejected() {
	msg := s.newMessage("", "hello", nil, false)

	_, _, err := s.repo.Upsert(msg)

	assert.ErrorIs(s.T(), err, ErrInvalidInput)
}

// ==================== Query Tests ====================

func (s *MessageRepositoryTestSuite) TestList_FiltersByCategoryAndRead() {
	for i, tc := range []struct {
		remoteID string
		labels   []string
		read     bool
	}{
		{"r-1", []string{"INBOX"}, false},
		{"r-2", []string{"INBOX"}, true},
		{"r-3", []string{"SENT"}, true},
	} {
		msg := s.newMessage(tc.remoteID, "body", tc.labels, tc.read)
		msg.ReceivedAt = msg.ReceivedAt.Add(time.Duration(i) * time.Hour)
		_, _, err := s.repo.Upsert(msg)
		require.NoError(s.T(), err)
	}

	unread := false
	got, err := s.repo.List(ListFilter{Category: domain.CategoryInbox, IsRead: &unread})
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "r-1", got[0].RemoteID)

	all, err := s.repo.List(ListFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), all, 3)
	assert.Equal(s.T(), "r-3", all[0].RemoteID, "newest first")
}

func (s *MessageRepositoryTestSuite) TestSearch_MatchesSubjectSenderAndBody() {
	invoice := s.newMessage("r-1", "please fnd attached invoice", []string{"INBOX"}, false)
	invoice.Subject = "Invoice #42"
	_, _, err := s.repo.Upsert(invoice)
	require.NoError(s.T(), err)

	other := s.newMessage("r-2", "lunch on friday?", []string{"INBOX"}, false)
	other.Subject = "Lunch"
	_, _, err = s.repo.Upsert(other)
	require.NoError(s.T(), err)

	got, err := s.repo.Search("invoice", 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "r-1", got[0].RemoteID)

	empty, err := s.repo.Search("", 10)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), empty)
}

func (s *MessageRepositoryTestSuite) TestPriorityMessages_OrdersByScore() {
	low := s.newMessage("r-low", "newsletter", []string{"CATEGORY_PROMOTIONS"}, true)
	high := s.newMessage("r-high", "server down", []string{"INBOX"}, false)
	for _, m := range []*domain.Message{low, high} {
		_, _, err := s.repo.Upsert(m)
		require.NoError(s.T(), err)
	}
	s.createCompleteAnalysis(low, 10)
	s.createCompleteAnalysis(high, 95)

	got, err := s.repo.PriorityMessages(10)
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 2)
	assert.Equal(s.T(), "r-high", got[0].RemoteID)
	require.NotNil(s.T(), got[0].Analysis)
	assert.Equal(s.T(), 95, got[0].Analysis.PriorityScore)
}

func (s *MessageRepositoryTestSuite) TestQueryAnalyzable_SelectsStaleAndUntouched() {
	fresh := s.newMessage("r-fresh", "new mail", []string{"INBOX"}, false)
	stale := s.newMessage("r-stale", "edited mail", []string{"INBOX"}, false)
	done := s.newMessage("r-done", "analyzed mail", []string{"INBOX"}, false)
	for _, m := range []*domain.Message{fresh, stale, done} {
		_, _, err := s.repo.Upsert(m)
		require.NoError(s.T(), err)
	}
	// done: complete against the current fingerprint
	s.createCompleteAnalysis(done, 50)
	// stale: complete against an older fingerprint
	s.db.Create(&domain.Analysis{
		ID:          uuid.New().String(),
		MessageID:   stale.ID,
		Status:      domain.AnalysisComplete,
		Fingerprint: "old-fingerprint",
	})

	got, err := s.repo.QueryAnalyzable(10, 3)
	require.NoError(s.T(), err)

	remoteIDs := make([]string, 0, len(got))
	for _, m := range got {
		remoteIDs = append(remoteIDs, m.RemoteID)
	}
	assert.ElementsMatch(s.T(), []string{"r-fresh", "r-stale"}, remoteIDs)
}

func (s *MessageRepositoryTestSuite) TestQueryAnalyzable_SkipsExhaustedFailures() {
	msg := s.newMessage("r-1", "flaky", []string{"INBOX"}, false)
	_, _, err := s.repo.Upsert(msg)
	require.NoError(s.T(), err)
	s.db.Create(&domain.Analysis{
		ID:        uuid.New().String(),
		MessageID: msg.ID,
		Status:    domain.AnalysisFailed,
		Attempts:  3,
	})

	got, err := s.repo.QueryAnalyzable(10, 3)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), got)

	// raising the attempt ceiling makes it eligible again
	got, err = s.repo.QueryAnalyzable(10, 5)
	require.NoError(s.T(), err)
	assert.Len(s.T(), got, 1)
}

func (s *MessageRepositoryTestSuite) TestQueryAnalyzable_SelectsOrphanedPending() {
	msg := s.newMessage("r-1", "queued", []string{"INBOX"}, false)
	_, _, err := s.repo.Upsert(msg)
	require.NoError(s.T(), err)
	// a pending row left behind by a worker that died before claiming
	s.db.Create(&domain.Analysis{
		ID:        uuid.New().String(),
		MessageID: msg.ID,
		Status:    domain.AnalysisPending,
	})

	got, err := s.repo.QueryAnalyzable(10, 3)
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "r-1", got[0].RemoteID)
}

func (s *MessageRepositoryTestSuite) TestQueryAnalyzable_ReclaimsAbandonedInProgress() {
	live := s.newMessage("r-live", "being analyzed", []string{"INBOX"}, false)
	dead := s.newMessage("r-dead", "worker crashed", []string{"INBOX"}, false)
	for _, m := range []*domain.Message{live, dead} {
		_, _, err := s.repo.Upsert(m)
		require.NoError(s.T(), err)
		s.db.Create(&domain.Analysis{
			ID:        uuid.New().String(),
			MessageID: m.ID,
			Status:    domain.AnalysisInProgress,
			Attempts:  1,
		})
	}
	// the dead worker's claim aged past the timeout
	s.db.Exec("UPDATE analyses SET updated_at = ? WHERE message_id = ?",
		time.Now().Add(-2*AnalysisClaimTimeout), dead.ID)

	got, err := s.repo.QueryAnalyzable(10, 3)
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "r-dead", got[0].RemoteID)
}

func (s *MessageRepositoryTestSuite) TestStats_Distributions() {
	inbox := s.newMessage("r-1", "a", []string{"INBOX"}, false)
	sent := s.newMessage("r-2", "b", []string{"SENT"}, true)
	for _, m := range []*domain.Message{inbox, sent} {
		_, _, err := s.repo.Upsert(m)
		require.NoError(s.T(), err)
	}
	s.createCompleteAnalysis(inbox, 80)

	stats, err := s.repo.Stats()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), stats.TotalMessages)
	assert.Equal(s.T(), int64(1), stats.UnreadMessages)
	assert.Equal(s.T(), int64(1), stats.AnalyzedMessages)
	assert.Equal(s.T(), int64(1), stats.PendingAnalysis)
	assert.Equal(s.T(), int64(1), stats.ByCategory[domain.CategoryInbox])
	assert.Equal(s.T(), int64(1), stats.ByCategory[domain.CategorySent])
	assert.Equal(s.T(), int64(1), stats.BySentiment[domain.SentimentUrgent])
	assert.Equal(s.T(), int64(1), stats.ByPriority["high"])
	require.NotEmpty(s.T(), stats.TopSenders)
	assert.Equal(s.T(), "alice@example.com", stats.TopSenders[0].Sender)
}

func (s *MessageRepositoryTestSuite) createCompleteAnalysis(msg *domain.Message, priority int) {
	err := s.db.Create(&domain.Analysis{
		ID:            uuid.New().String(),
		MessageID:     msg.ID,
		Status:        domain.AnalysisComplete,
		Fingerprint:   msg.Fingerprint,
		Sentiment:     domain.SentimentUrgent,
		PriorityScore: priority,
	}).Error
	require.NoError(s.T(), err)
}
