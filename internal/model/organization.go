package model

import "time"

// Organization is the top-level tenant. Settings holds the encrypted API
// settings blob (PMS credentials among them); it is written by the admin
// configuration surface and only ever read here.
type Organization struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:256;not null"`
	Settings  []byte
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Branches []Branch `gorm:"foreignKey:OrganizationID"`
}
