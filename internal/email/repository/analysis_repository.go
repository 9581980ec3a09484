package repository

import (
	"errors"
	"time"

	"mailmind/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnalysisClaimTimeout bounds how long an in_progress claim is trusted.
// A claim older than this belongs to a worker that died mid-run and the
// row becomes reclaimable.
const AnalysisClaimTimeout = 15 * time.Minute

// AnalysisRepository defines the interface for analysis state persistence
type AnalysisRepository interface {
	// Claim atomically marks a message's analysis in progress for the
	// given fingerprint. It succeeds when no analysis exists yet, the
	// last one failed, the last one completed against a different
	// fingerprint, or a previous claim was abandoned past the timeout.
	// Returns false when another worker holds a live claim or the
	// stored result is current.
	Claim(messageID, fingerprint string) (bool, error)
	// Complete commits a finished result. Only valid from in_progress.
	Complete(messageID string, result *domain.Analysis) error
	// Fail records a failed attempt with its reason. Only valid from
	// in_progress.
	Fail(messageID, reason string) error
	// GetByMessageID retrieves the analysis row for a message
	GetByMessageID(messageID string) (*domain.Analysis, error)
}

type analysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository creates a new instance of analysisRepository
func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{
		db: db,
	}
}

func (r *analysisRepository) Claim(messageID, fingerprint string) (bool, error) {
	if messageID == "" {
		return false, ErrInvalidInput
	}

	claimed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var analysis domain.Analysis
		err := tx.Where("message_id = ?", messageID).First(&analysis).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			analysis = domain.Analysis{
				ID:        uuid.New().String(),
				MessageID: messageID,
				Status:    domain.AnalysisPending,
			}
			if err := tx.Create(&analysis).Error; err != nil && !isDuplicateKeyError(err) {
				return err
			}
		} else if err != nil {
			return err
		}

		// the WHERE clause is the claim guard: only one concurrent
		// worker can move the row to in_progress
		res := tx.Model(&domain.Analysis{}).
			Where("message_id = ?", messageID).
			Where(
				tx.Where("status IN ?", []string{
					domain.AnalysisPending,
					domain.AnalysisFailed,
				}).Or("status = ? AND fingerprint <> ?",
					domain.AnalysisComplete, fingerprint).
					Or("status = ? AND updated_at < ?",
						domain.AnalysisInProgress,
						time.Now().Add(-AnalysisClaimTimeout)),
			).
			Updates(map[string]interface{}{
				"status":   domain.AnalysisInProgress,
				"attempts": gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected == 1
		return nil
	})
	return claimed, err
}

func (r *analysisRepository) Complete(messageID string, result *domain.Analysis) error {
	res := r.db.Model(&domain.Analysis{}).
		Where("message_id = ? AND status = ?", messageID, domain.AnalysisInProgress).
		Updates(map[string]interface{}{
			"status":            domain.AnalysisComplete,
			"fail_reason":       "",
			"fingerprint":       result.Fingerprint,
			"summaries":         result.Summaries,
			"sentiment":         result.Sentiment,
			"priority_score":    result.PriorityScore,
			"priority_reason":   result.PriorityReason,
			"key_topics":        result.KeyTopics,
			"action_items":      result.ActionItems,
			"suggested_actions": result.SuggestedActions,
			"action_required":   result.ActionRequired,
			"input_truncated":   result.InputTruncated,
			"analyzed_at":       time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimConflict
	}
	return nil
}

func (r *analysisRepository) Fail(messageID, reason string) error {
	res := r.db.Model(&domain.Analysis{}).
		Where("message_id = ? AND status = ?", messageID, domain.AnalysisInProgress).
		Updates(map[string]interface{}{
			"status":      domain.AnalysisFailed,
			"fail_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimConflict
	}
	return nil
}

func (r *analysisRepository) GetByMessageID(messageID string) (*domain.Analysis, error) {
	var analysis domain.Analysis
	err := r.db.Where("message_id = ?", messageID).First(&analysis).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}
