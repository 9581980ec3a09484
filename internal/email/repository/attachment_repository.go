package repository

import (
	"errors"

	"mailmind/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttachmentRepository defines the interface for attachment persistence
type AttachmentRepository interface {
	// InsertIfAbsent stores an extraction result unless one already exists
	// for the same (message, filename, content hash). Returns true when a
	// new row was written; stored results are never overwritten.
	InsertIfAbsent(att *domain.Attachment) (bool, error)
	// ListByMessage retrieves all extraction results for a message
	ListByMessage(messageID string) ([]domain.Attachment, error)
}

type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository creates a new instance of attachmentRepository
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{
		db: db,
	}
}

func (r *attachmentRepository) InsertIfAbsent(att *domain.Attachment) (bool, error) {
	if att.MessageID == "" || att.Filename == "" {
		return false, ErrInvalidInput
	}

	var existing domain.Attachment
	err := r.db.Where(
		"message_id = ? AND filename = ? AND content_hash = ?",
		att.MessageID, att.Filename, att.ContentHash,
	).First(&existing).Error
	if err == nil {
		att.ID = existing.ID
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	if err := r.db.Create(att).Error; err != nil {
		if isDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *attachmentRepository) ListByMessage(messageID string) ([]domain.Attachment, error) {
	var attachments []domain.Attachment
	err := r.db.Where("message_id = ?", messageID).
		Order("filename ASC").Find(&attachments).Error
	return attachments, err
}
