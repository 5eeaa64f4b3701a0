package model

import "time"

// Reservation lifecycle status.
const (
	StatusConfirmed  = "confirmed"
	StatusCheckedIn  = "checked_in"
	StatusCheckedOut = "checked_out"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Reservation payment status.
const (
	PaymentPending       = "pending"
	PaymentPartiallyPaid = "partially_paid"
	PaymentPaid          = "paid"
	PaymentRefunded      = "refunded"
)

// Reservation is the local copy of one PMS reservation. LobbyReservationID
// is the PMS booking identifier and the upsert key: one external reservation
// maps to exactly one row, created on first sync and updated in place on
// every later sync.
//
// CheckInDate and CheckOutDate are calendar dates, not instants; they are
// stored at midnight in the zone they were parsed in and must never be
// shifted through UTC conversion.
type Reservation struct {
	ID                 int64  `gorm:"primaryKey;autoIncrement"`
	LobbyReservationID string `gorm:"uniqueIndex;size:64;not null"`

	GuestName        string `gorm:"size:256;not null"`
	GuestEmail       string `gorm:"size:256"`
	GuestPhone       string `gorm:"size:64"`
	GuestNationality string `gorm:"size:64"`

	CheckInDate  time.Time `gorm:"not null"`
	CheckOutDate time.Time `gorm:"not null"`
	ArrivalTime  *time.Time

	// RoomNumber carries the bed identifier for shared/dorm bookings and is
	// empty for private rooms; RoomDescription carries the room name in both
	// cases.
	RoomNumber      string `gorm:"size:128"`
	RoomDescription string `gorm:"size:256"`
	CategoryID      string `gorm:"size:64"`

	Status        string  `gorm:"size:32;not null;default:confirmed"`
	PaymentStatus string  `gorm:"size:32;not null;default:pending"`
	Amount        float64 `gorm:"not null;default:0"`
	Currency      string  `gorm:"size:8"`

	// CheckInDataUploaded is monotonic: once true it is never unset, and
	// CheckInDataUploadedAt records the first transition only.
	CheckInDataUploaded   bool `gorm:"not null;default:false"`
	CheckInDataUploadedAt *time.Time

	OrganizationID int64 `gorm:"index;not null"`
	BranchID       int64 `gorm:"index;not null"`

	PaymentDeadline   *time.Time
	AutoCancelEnabled bool `gorm:"not null;default:false"`

	DoorPin            *string `gorm:"size:32"`
	CancelledAt        *time.Time
	CancelledBy        string `gorm:"size:64"`
	CancellationReason string `gorm:"size:256"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
