package repository

import (
	"errors"
	"time"

	"mailmind/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListFilter narrows message listing
type ListFilter struct {
	Category string
	Sender   string
	IsRead   *bool
	Limit    int
	Offset   int
}

// MessageRepository defines the interface for message persistence operations
type MessageRepository interface {
	// Upsert inserts a new message or updates an existing one keyed by
	// remote ID. Returns (created, changed): created means a new row was
	// inserted, changed means an existing row's fingerprint differed and
	// its mutable fields were rewritten. (false, false) means the stored
	// copy was already current and nothing was touched.
	Upsert(msg *domain.Message) (created bool, changed bool, err error)
	// GetByRemoteID retrieves a message by its provider-assigned ID
	GetByRemoteID(remoteID string) (*domain.Message, error)
	// GetByID retrieves a message with its attachments and analysis
	GetByID(id string) (*domain.Message, error)
	// List retrieves messages matching the filter, newest first
	List(filter ListFilter) ([]domain.Message, error)
	// Search retrieves messages whose subject, sender or body contains
	// the query, newest first
	Search(query string, limit int) ([]domain.Message, error)
	// PriorityMessages retrieves analyzed messages ordered by priority
	// score, highest first
	PriorityMessages(limit int) ([]domain.Message, error)
	// QueryAnalyzable retrieves messages that need analysis work: no
	// analysis row yet, a pending row nobody claimed, a failed analysis
	// with attempts left, a completed analysis whose fingerprint no
	// longer matches the message, or an in-progress claim abandoned past
	// the claim timeout
	QueryAnalyzable(limit, maxAttempts int) ([]domain.Message, error)
	// Stats computes aggregate counts over the stored mailbox
	Stats() (*domain.MailboxStats, error)
}

// messageRepository implements MessageRepository interface
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// mutable fields rewritten when a message's fingerprint changes; identity
// and immutable envelope fields stay as first stored
var messageUpdateColumns = []string{
	"snippet", "body_text", "body_html", "labels", "category",
	"is_read", "fingerprint", "updated_at",
}

func (r *messageRepository) Upsert(msg *domain.Message) (bool, bool, error) {
	if msg.RemoteID == "" {
		return false, false, ErrInvalidInput
	}

	var created, changed bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing domain.Message
		err := tx.Where("remote_id = ?", msg.RemoteID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if msg.ID == "" {
				msg.ID = uuid.New().String()
			}
			if err := tx.Create(msg).Error; err != nil {
				if isDuplicateKeyError(err) {
					// concurrent insert of the same remote ID, treat
					// as already stored
					return nil
				}
				return err
			}
			created = true
			return nil
		}
		if err != nil {
			return err
		}

		msg.ID = existing.ID
		if existing.Fingerprint == msg.Fingerprint {
			return nil
		}
		if err := tx.Model(&domain.Message{}).
			Where("id = ?", existing.ID).
			Select(messageUpdateColumns).
			Updates(msg).Error; err != nil {
			return err
		}
		changed = true
		return nil
	})
	return created, changed, err
}

func (r *messageRepository) GetByRemoteID(remoteID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.Where("remote_id = ?", remoteID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) GetByID(id string) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.Preload("Attachments").Preload("Analysis").
		Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) List(filter ListFilter) ([]domain.Message, error) {
	query := r.db.Model(&domain.Message{})
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Sender != "" {
		query = query.Where("sender = ?", filter.Sender)
	}
	if filter.IsRead != nil {
		query = query.Where("is_read = ?", *filter.IsRead)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var messages []domain.Message
	err := query.Order("received_at DESC").Find(&messages).Error
	return messages, err
}

func (r *messageRepository) Search(query string, limit int) ([]domain.Message, error) {
	if query == "" {
		return []domain.Message{}, nil
	}
	pattern := "%" + query + "%"
	q := r.db.Where(
		"subject LIKE ? OR sender LIKE ? OR sender_name LIKE ? OR body_text LIKE ?",
		pattern, pattern, pattern, pattern,
	)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var messages []domain.Message
	err := q.Order("received_at DESC").Find(&messages).Error
	return messages, err
}

func (r *messageRepository) PriorityMessages(limit int) ([]domain.Message, error) {
	q := r.db.Preload("Analysis").
		Joins("JOIN analyses ON analyses.message_id = messages.id").
		Where("analyses.status = ?", domain.AnalysisComplete).
		Order("analyses.priority_score DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var messages []domain.Message
	err := q.Find(&messages).Error
	return messages, err
}

func (r *messageRepository) QueryAnalyzable(limit, maxAttempts int) ([]domain.Message, error) {
	q := r.db.Preload("Analysis").
		Joins("LEFT JOIN analyses ON analyses.message_id = messages.id").
		Where(
			r.db.Where("analyses.id IS NULL").
				Or("analyses.status = ?", domain.AnalysisPending).
				Or("analyses.status = ? AND analyses.attempts < ?",
					domain.AnalysisFailed, maxAttempts).
				Or("analyses.status = ? AND analyses.fingerprint <> messages.fingerprint",
					domain.AnalysisComplete).
				Or("analyses.status = ? AND analyses.updated_at < ?",
					domain.AnalysisInProgress,
					time.Now().Add(-AnalysisClaimTimeout)),
		).
		Order("messages.received_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var messages []domain.Message
	err := q.Find(&messages).Error
	return messages, err
}

func (r *messageRepository) Stats() (*domain.MailboxStats, error) {
	stats := &domain.MailboxStats{
		ByCategory:  make(map[string]int64),
		BySentiment: make(map[string]int64),
		ByPriority:  make(map[string]int64),
	}

	if err := r.db.Model(&domain.Message{}).Count(&stats.TotalMessages).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&domain.Message{}).
		Where("is_read = ?", false).
		Count(&stats.UnreadMessages).Error; err != nil {
		return nil, err
	}
	if err := r.db.Model(&domain.Analysis{}).
		Where("status = ?", domain.AnalysisComplete).
		Count(&stats.AnalyzedMessages).Error; err != nil {
		return nil, err
	}
	stats.PendingAnalysis = stats.TotalMessages - stats.AnalyzedMessages
	if stats.PendingAnalysis < 0 {
		stats.PendingAnalysis = 0
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var categories []bucket
	if err := r.db.Model(&domain.Message{}).
		Select("category AS key, COUNT(*) AS count").
		Group("category").Scan(&categories).Error; err != nil {
		return nil, err
	}
	for _, b := range categories {
		stats.ByCategory[b.Key] = b.Count
	}

	var sentiments []bucket
	if err := r.db.Model(&domain.Analysis{}).
		Select("sentiment AS key, COUNT(*) AS count").
		Where("status = ?", domain.AnalysisComplete).
		Group("sentiment").Scan(&sentiments).Error; err != nil {
		return nil, err
	}
	for _, b := range sentiments {
		stats.BySentiment[b.Key] = b.Count
	}

	var scores []int
	if err := r.db.Model(&domain.Analysis{}).
		Where("status = ?", domain.AnalysisComplete).
		Pluck("priority_score", &scores).Error; err != nil {
		return nil, err
	}
	for _, score := range scores {
		stats.ByPriority[domain.PriorityBand(score)]++
	}

	var senders []bucket
	if err := r.db.Model(&domain.Message{}).
		Select("sender AS key, COUNT(*) AS count").
		Group("sender").
		Order("count DESC").
		Limit(10).Scan(&senders).Error; err != nil {
		return nil, err
	}
	for _, b := range senders {
		stats.TopSenders = append(stats.TopSenders, domain.SenderCount{
			Sender: b.Key,
			Count:  b.Count,
		})
	}

	return stats, nil
}
