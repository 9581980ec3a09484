package domain

import "time"

// Well-known sync state keys
const (
	SyncKeyLastSyncAt  = "last_sync_at"
	SyncKeyChangeToken = "change_token"
)

// SyncState is a key/value row carrying sync coordinator metadata across
// runs (last sync time, provider change token).
type SyncState struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
