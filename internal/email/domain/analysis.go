package domain

import "time"

// Analysis lifecycle statuses
const (
	AnalysisPending    = "pending"
	AnalysisInProgress = "in_progress"
	AnalysisComplete   = "complete"
	AnalysisFailed     = "failed"
)

// Summary variant keys
const (
	SummaryBrief     = "brief"
	SummaryDetailed  = "detailed"
	SummaryBullet    = "bullet"
	SummaryExecutive = "executive"
)

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentUrgent   = "urgent"
)

// Priority score bounds
const (
	PriorityMin = 0
	PriorityMax = 100
)

// Analysis is the 1:1 AI analysis record for a Message. Fingerprint holds the
// message fingerprint at the time status last reached complete: a message
// whose current fingerprint differs is stale and becomes eligible for
// re-analysis. A stale record keeps its previous result readable until a new
// result commits.
type Analysis struct {
	ID               string      `json:"id" gorm:"primaryKey"`
	MessageID        string      `json:"message_id" gorm:"uniqueIndex;not null"`
	Status           string      `json:"status" gorm:"index;not null;default:pending"`
	FailReason       string      `json:"fail_reason,omitempty"`
	Fingerprint      string      `json:"fingerprint"`
	Summaries        StringMap   `json:"summaries" gorm:"type:text"`
	Sentiment        string      `json:"sentiment"`
	PriorityScore    int         `json:"priority_score"`
	PriorityReason   string      `json:"priority_reason"`
	KeyTopics        StringArray `json:"key_topics" gorm:"type:text"`
	ActionItems      StringArray `json:"action_items" gorm:"type:text"`
	SuggestedActions StringArray `json:"suggested_actions" gorm:"type:text"`
	ActionRequired   bool        `json:"action_required"`
	InputTruncated   bool        `json:"input_truncated"`
	Attempts         int         `json:"attempts"`
	AnalyzedAt       *time.Time  `json:"analyzed_at,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Analysis) TableName() string {
	return "analyses"
}

// ValidSentiment reports whether s is one of the known sentiment labels
func ValidSentiment(s string) bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral, SentimentUrgent:
		return true
	}
	return false
}

// ClampPriority bounds a priority score to the declared range
func ClampPriority(score int) int {
	if score < PriorityMin {
		return PriorityMin
	}
	if score > PriorityMax {
		return PriorityMax
	}
	return score
}
