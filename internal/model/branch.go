package model

import "time"

// Branch is a tenant sub-unit (a physical property) under an Organization.
// LobbyPmsSettings, when present, holds an encrypted credentials blob that
// fully shadows the organization-level settings.
type Branch struct {
	ID               int64  `gorm:"primaryKey"`
	OrganizationID   int64  `gorm:"index;not null"`
	Name             string `gorm:"size:256;not null"`
	LobbyPmsSettings []byte
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`

	// Associations
	Organization Organization `gorm:"constraint:OnDelete:CASCADE"`
}
