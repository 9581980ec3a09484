package dto

import (
	emaildomain "mailmind/internal/email/domain"
)

type SyncRequest struct {
	Mode string `json:"mode"` // "recent" or "all", default recent
	Days int    `json:"days"` // recent-window size, default from config
}

type AnalyzeRequest struct {
	Limit int `json:"limit"` // max messages to analyze, 0 = unbounded
}

type PipelineRequest struct {
	Days  int `json:"days"`
	Limit int `json:"limit"`
}

type MessagesResponse struct {
	Messages []emaildomain.Message `json:"messages"`
	Limit    int                   `json:"limit"`
	Offset   int                   `json:"offset"`
	Count    int                   `json:"count"`
}
