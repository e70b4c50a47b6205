package model

import "time"

// Sync run statuses recorded in sync_history.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// SyncHistory is one sync attempt for one entity type. Rows are insert-only;
// the latest row per entity type carries the current watermark.
type SyncHistory struct {
	ID              uint64 `gorm:"primaryKey"`
	EntityType      string `gorm:"size:64;not null;index"`
	LastSyncValue   int64  `gorm:"not null;default:0"`
	RecordsSynced   int    `gorm:"not null;default:0"`
	Status          string `gorm:"size:16;not null"`
	SyncStartedAt   time.Time
	SyncCompletedAt time.Time `gorm:"index"`
	ErrorMessage    *string
}

func (SyncHistory) TableName() string { return "sync_history" }
