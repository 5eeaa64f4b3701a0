package model

import "time"

// Sync history entry types.
const (
	SyncTypeUpdated = "updated"
	SyncTypeError   = "error"
)

// ReservationSyncHistory is an append-only record of one sync attempt
// against a reservation. Rows are never mutated or deleted by the sync
// subsystem.
type ReservationSyncHistory struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	ReservationID int64  `gorm:"index;not null"`
	SyncType      string `gorm:"size:16;not null"`
	SyncData      []byte `gorm:"type:jsonb"`
	ErrorMessage  string
	CreatedAt     time.Time `gorm:"not null"`
}
