package model

import "time"

// PushSubscription holds a staff browser push subscription, scoped to the
// branch whose reservation events it wants to hear about.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	BranchID  int64     `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
}
