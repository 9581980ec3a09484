package domain

import "time"

// Attachment processing statuses
const (
	AttachmentPending   = "pending"
	AttachmentExtracted = "extracted"
	AttachmentFailed    = "failed"
)

// Attachment is an extracted attachment owned by exactly one Message.
// Identity is the (message, filename, content hash) triple so that two
// attachments with the same name but different content never collide. Rows
// are immutable once written; a content change on re-fetch inserts a new row
// and the old one is retained as superseded.
type Attachment struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	MessageID     string    `json:"message_id" gorm:"uniqueIndex:idx_attachment_identity;index;not null"`
	Filename      string    `json:"filename" gorm:"uniqueIndex:idx_attachment_identity;not null"`
	ContentHash   string    `json:"content_hash" gorm:"uniqueIndex:idx_attachment_identity;not null"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	ExtractedText string    `json:"extracted_text" gorm:"type:text"`
	Preview       string    `json:"preview" gorm:"size:500"`
	Metadata      StringMap `json:"metadata,omitempty" gorm:"type:text"`
	Status        string    `json:"status" gorm:"not null;default:pending"`
	FailReason    string    `json:"fail_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Attachment) TableName() string {
	return "attachments"
}
