package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reservation-sync-backend/internal/model"
)

// Store defines the interface for all database operations used by the sync
// subsystem and the API.
type Store interface {
	DB() *gorm.DB

	GetBranch(ctx context.Context, id int64) (*model.Branch, error)
	GetOrganization(ctx context.Context, id int64) (*model.Organization, error)
	// ListBranches returns branches ordered by id; organizationID 0 means
	// all organizations.
	ListBranches(ctx context.Context, organizationID int64) ([]model.Branch, error)

	// FindReservationByLobbyID returns (nil, nil) when no row exists.
	FindReservationByLobbyID(ctx context.Context, lobbyReservationID string) (*model.Reservation, error)
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
	// ListArrivals returns reservations checking in on the given calendar
	// day, optionally only those with an arrival time at or after the
	// threshold.
	ListArrivals(ctx context.Context, branchID int64, day time.Time, after *time.Time) ([]model.Reservation, error)
	ListSyncHistory(ctx context.Context, reservationID int64, limit int) ([]model.ReservationSyncHistory, error)
	// UpsertReservation creates or updates the row keyed on
	// lobby_reservation_id and returns the persisted row.
	UpsertReservation(ctx context.Context, r *model.Reservation) (*model.Reservation, error)
	AppendSyncHistory(ctx context.Context, entry *model.ReservationSyncHistory) error
	SetDoorPin(ctx context.Context, reservationID int64, pin string) error

	ListExpiredPendingReservations(ctx context.Context, now time.Time) ([]model.Reservation, error)
	MarkReservationCancelled(ctx context.Context, reservationID int64, at time.Time, by, reason string) error

	ListSubscriptionsForBranch(ctx context.Context, branchID int64) ([]model.PushSubscription, error)
	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// ReservationFilter narrows a reservation listing. Zero values mean "no
// filter".
type ReservationFilter struct {
	BranchID      int64
	Status        string
	PaymentStatus string
	CheckInFrom   time.Time
	CheckInTo     time.Time
	Limit         int
	Offset        int
}

// reservationUpsertColumns are the business fields a sync overwrites.
// Door PIN, cancellation metadata and the auto-cancel settings are owned by
// other flows and deliberately left out.
var reservationUpsertColumns = []string{
	"guest_name", "guest_email", "guest_phone", "guest_nationality",
	"check_in_date", "check_out_date", "arrival_time",
	"room_number", "room_description", "category_id",
	"status", "payment_status", "amount", "currency",
	"check_in_data_uploaded", "check_in_data_uploaded_at",
	"organization_id", "branch_id", "updated_at",
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) GetBranch(ctx context.Context, id int64) (*model.Branch, error) {
	var branch model.Branch
	if err := s.db.WithContext(ctx).First(&branch, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load branch %d: %w", id, err)
	}
	return &branch, nil
}

func (s *gormStore) GetOrganization(ctx context.Context, id int64) (*model.Organization, error) {
	var org model.Organization
	if err := s.db.WithContext(ctx).First(&org, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load organization %d: %w", id, err)
	}
	return &org, nil
}

func (s *gormStore) ListBranches(ctx context.Context, organizationID int64) ([]model.Branch, error) {
	var branches []model.Branch
	q := s.db.WithContext(ctx).Order("id")
	if organizationID != 0 {
		q = q.Where("organization_id = ?", organizationID)
	}
	if err := q.Find(&branches).Error; err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	return branches, nil
}

func (s *gormStore) FindReservationByLobbyID(ctx context.Context, lobbyReservationID string) (*model.Reservation, error) {
	var reservation model.Reservation
	err := s.db.WithContext(ctx).
		Where("lobby_reservation_id = ?", lobbyReservationID).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reservation %s: %w", lobbyReservationID, err)
	}
	return &reservation, nil
}

func (s *gormStore) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	var reservation model.Reservation
	if err := s.db.WithContext(ctx).First(&reservation, id).Error; err != nil {
		return nil, fmt.Errorf("failed to load reservation %d: %w", id, err)
	}
	return &reservation, nil
}

func (s *gormStore) ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	q := s.db.WithContext(ctx).Order("check_in_date, id")
	if f.BranchID != 0 {
		q = q.Where("branch_id = ?", f.BranchID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if !f.CheckInFrom.IsZero() {
		q = q.Where("check_in_date >= ?", f.CheckInFrom)
	}
	if !f.CheckInTo.IsZero() {
		q = q.Where("check_in_date <= ?", f.CheckInTo)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var reservations []model.Reservation
	if err := q.Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	return reservations, nil
}

func (s *gormStore) ListArrivals(ctx context.Context, branchID int64, day time.Time, after *time.Time) ([]model.Reservation, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	q := s.db.WithContext(ctx).
		Where("check_in_date >= ? AND check_in_date < ?", dayStart, dayStart.AddDate(0, 0, 1)).
		Where("status <> ?", model.StatusCancelled).
		Order("arrival_time, id")
	if branchID != 0 {
		q = q.Where("branch_id = ?", branchID)
	}
	if after != nil {
		q = q.Where("arrival_time IS NOT NULL AND arrival_time >= ?", *after)
	}

	var reservations []model.Reservation
	if err := q.Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list arrivals: %w", err)
	}
	return reservations, nil
}

func (s *gormStore) ListSyncHistory(ctx context.Context, reservationID int64, limit int) ([]model.ReservationSyncHistory, error) {
	q := s.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []model.ReservationSyncHistory
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync history for reservation %d: %w", reservationID, err)
	}
	return entries, nil
}

func (s *gormStore) UpsertReservation(ctx context.Context, r *model.Reservation) (*model.Reservation, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lobby_reservation_id"}},
		DoUpdates: clause.AssignmentColumns(reservationUpsertColumns),
	}).Create(r).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert reservation %s: %w", r.LobbyReservationID, err)
	}

	// Re-read so the caller always sees the persisted row, including the
	// primary key on the conflict path.
	var persisted model.Reservation
	if err := s.db.WithContext(ctx).
		Where("lobby_reservation_id = ?", r.LobbyReservationID).
		First(&persisted).Error; err != nil {
		return nil, fmt.Errorf("failed to reload reservation %s: %w", r.LobbyReservationID, err)
	}
	return &persisted, nil
}

func (s *gormStore) AppendSyncHistory(ctx context.Context, entry *model.ReservationSyncHistory) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append sync history for reservation %d: %w", entry.ReservationID, err)
	}
	return nil
}

func (s *gormStore) SetDoorPin(ctx context.Context, reservationID int64, pin string) error {
	err := s.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Where("id = ?", reservationID).
		Update("door_pin", pin).Error
	if err != nil {
		return fmt.Errorf("failed to set door pin for reservation %d: %w", reservationID, err)
	}
	return nil
}

func (s *gormStore) ListExpiredPendingReservations(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	var reservations []model.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusConfirmed).
		Where("payment_status = ?", model.PaymentPending).
		Where("auto_cancel_enabled = ?", true).
		Where("payment_deadline IS NOT NULL AND payment_deadline < ?", now).
		Where("cancelled_at IS NULL").
		Order("payment_deadline").
		Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired pending reservations: %w", err)
	}
	return reservations, nil
}

func (s *gormStore) MarkReservationCancelled(ctx context.Context, reservationID int64, at time.Time, by, reason string) error {
	err := s.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Where("id = ?", reservationID).
		Updates(map[string]any{
			"status":              model.StatusCancelled,
			"cancelled_at":        at,
			"cancelled_by":        by,
			"cancellation_reason": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark reservation %d cancelled: %w", reservationID, err)
	}
	return nil
}

func (s *gormStore) ListSubscriptionsForBranch(ctx context.Context, branchID int64) ([]model.PushSubscription, error) {
	var subscriptions []model.PushSubscription
	err := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Find(&subscriptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for branch %d: %w", branchID, err)
	}
	return subscriptions, nil
}

func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "branch_id"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription %s: %w", sub.Endpoint, err)
	}
	return nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", endpoint, err)
	}
	return nil
}
