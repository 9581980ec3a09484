package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Message categories derived from provider labels
const (
	CategoryInbox      = "Inbox"
	CategorySent       = "Sent"
	CategoryDrafts     = "Drafts"
	CategoryPromotions = "Promotions"
	CategoryImportant  = "Important"
	CategoryOther      = "Other"
)

// Message is the canonical persisted form of a fetched mail message.
// RemoteID is the identity key: it comes from the remote provider and never
// changes once assigned. Fingerprint changes whenever a semantically
// meaningful field changes (body, labels, read flag) and drives both
// update-on-resync and re-analysis eligibility.
type Message struct {
	ID          string      `json:"id" gorm:"primaryKey"`
	RemoteID    string      `json:"remote_id" gorm:"uniqueIndex;not null"`
	ThreadID    string      `json:"thread_id" gorm:"index"`
	Sender      string      `json:"sender" gorm:"index"`
	SenderName  string      `json:"sender_name"`
	Recipients  StringArray `json:"recipients" gorm:"type:text"`
	Subject     string      `json:"subject"`
	Snippet     string      `json:"snippet"`
	BodyText    string      `json:"body_text" gorm:"type:text"`
	BodyHTML    string      `json:"body_html" gorm:"type:text"`
	Labels      StringArray `json:"labels" gorm:"type:text"`
	Category    string      `json:"category" gorm:"index"`
	IsRead      bool        `json:"is_read" gorm:"index"`
	ReceivedAt  time.Time   `json:"received_at" gorm:"index"`
	Fingerprint string      `json:"fingerprint" gorm:"not null"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	Analysis    *Analysis    `json:"analysis,omitempty" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// ComputeFingerprint hashes the mutable fields of a message. Identical input
// always yields the identical fingerprint; label order does not matter.
func ComputeFingerprint(bodyText string, labels []string, isRead bool) string {
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(bodyText))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte{0})
	if isRead {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MapLabelsToCategory converts provider labels into one of our categories
func MapLabelsToCategory(labels []string) string {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	switch {
	case set["INBOX"]:
		return CategoryInbox
	case set["SENT"]:
		return CategorySent
	case set["DRAFT"]:
		return CategoryDrafts
	case set["CATEGORY_PROMOTIONS"]:
		return CategoryPromotions
	case set["IMPORTANT"]:
		return CategoryImportant
	default:
		return CategoryOther
	}
}
