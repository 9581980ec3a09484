package domain

import "time"

// RunStats summarizes one pipeline run. Counters are per-run, not cumulative.
type RunStats struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Fetched              int `json:"fetched"`
	New                  int `json:"new"`
	Updated              int `json:"updated"`
	Skipped              int `json:"skipped"`
	AttachmentsExtracted int `json:"attachments_extracted"`
	Analyzed             int `json:"analyzed"`
	AnalysisFailed       int `json:"analysis_failed"`
	Errors               int `json:"errors"`

	// Reasons counts per-item failures by a short reason key
	// ("malformed", "fetch", "attachment", "ai_timeout", ...).
	Reasons map[string]int `json:"reasons,omitempty"`
}

func NewRunStats() *RunStats {
	return &RunStats{
		StartedAt: time.Now(),
		Reasons:   make(map[string]int),
	}
}

// RecordError counts one per-item failure under the given reason key
func (s *RunStats) RecordError(reason string) {
	s.Errors++
	if s.Reasons == nil {
		s.Reasons = make(map[string]int)
	}
	s.Reasons[reason]++
}

// Merge folds another run's counters into this one
func (s *RunStats) Merge(other *RunStats) {
	if other == nil {
		return
	}
	s.Fetched += other.Fetched
	s.New += other.New
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.AttachmentsExtracted += other.AttachmentsExtracted
	s.Analyzed += other.Analyzed
	s.AnalysisFailed += other.AnalysisFailed
	s.Errors += other.Errors
	for k, v := range other.Reasons {
		if s.Reasons == nil {
			s.Reasons = make(map[string]int)
		}
		s.Reasons[k] += v
	}
}

// MailboxStats is the aggregate view over stored messages and analyses.
type MailboxStats struct {
	TotalMessages    int64            `json:"total_messages"`
	UnreadMessages   int64            `json:"unread_messages"`
	AnalyzedMessages int64            `json:"analyzed_messages"`
	PendingAnalysis  int64            `json:"pending_analysis"`
	ByCategory       map[string]int64 `json:"by_category"`
	BySentiment      map[string]int64 `json:"by_sentiment"`
	ByPriority       map[string]int64 `json:"by_priority"`
	TopSenders       []SenderCount    `json:"top_senders"`
}

// PriorityBand names the bucket a priority score falls into
func PriorityBand(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}

type SenderCount struct {
	Sender string `json:"sender"`
	Count  int64  `json:"count"`
}
