package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"reservation-sync-backend/internal/lobbypms"
	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/store"
	"reservation-sync-backend/pkg/metrics"
)

// ErrMissingBranch indicates a reservation reached the mapper without a
// branch to attribute it to. This is a hard precondition: the row is not
// written.
var ErrMissingBranch = errors.New("cannot sync reservation without a branch")

// PinIssuer generates a door PIN for a reservation. Implementations talk to
// the lock system.
type PinIssuer interface {
	IssuePin(ctx context.Context, r *model.Reservation) (string, error)
}

// Notifier announces sync outcomes to staff devices.
type Notifier interface {
	NotifyPinIssued(reservationID int64)
}

// TaskDispatcher forwards reservation events to the downstream task
// automation webhook.
type TaskDispatcher interface {
	DispatchReservationEvent(ctx context.Context, r *model.Reservation, event string)
}

// Mapper converts raw PMS payloads into local reservation rows and persists
// them. One external reservation maps to exactly one row keyed on the PMS
// booking id, so re-running a sync is always safe.
type Mapper struct {
	store   store.Store
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	pins     PinIssuer
	notifier Notifier
	tasks    TaskDispatcher
}

// NewMapper creates a mapper. pins, notifier and tasks may be nil, which
// disables the corresponding side effect.
func NewMapper(st store.Store, m *metrics.Metrics, log *zap.SugaredLogger, pins PinIssuer, notifier Notifier, tasks TaskDispatcher) *Mapper {
	return &Mapper{store: st, log: log, metrics: m, pins: pins, notifier: notifier, tasks: tasks}
}

// SyncOne upserts a single raw reservation for the given tenant. The write
// path is transactional in spirit: the row and its history entry land
// before any side effect runs, and a side-effect failure never rolls the
// row back.
func (m *Mapper) SyncOne(ctx context.Context, raw *lobbypms.RawReservation, organizationID, branchID int64) (*model.Reservation, error) {
	if branchID == 0 {
		return nil, ErrMissingBranch
	}
	externalID := raw.ExternalID()
	if externalID == "" {
		return nil, errors.New("reservation payload carries no booking id")
	}

	existing, err := m.store.FindReservationByLobbyID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	row, err := m.buildRow(raw, existing, organizationID, branchID)
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", externalID, err)
	}

	persisted, err := m.store.UpsertReservation(ctx, row)
	if err != nil {
		return nil, err
	}
	m.metrics.ReservationsSynced.Inc()

	m.appendHistory(ctx, persisted.ID, raw)
	m.runSideEffects(ctx, existing, persisted)
	return persisted, nil
}

// buildRow maps a raw payload onto a reservation row. Fields owned by other
// flows (door PIN, cancellation metadata, auto-cancel settings) are carried
// over from the existing row untouched.
func (m *Mapper) buildRow(raw *lobbypms.RawReservation, existing *model.Reservation, organizationID, branchID int64) (*model.Reservation, error) {
	checkIn, err := lobbypms.ParseCalendarDate(raw.CheckInRaw())
	if err != nil {
		return nil, fmt.Errorf("invalid check-in date: %w", err)
	}
	checkOut, err := lobbypms.ParseCalendarDate(raw.CheckOutRaw())
	if err != nil {
		return nil, fmt.Errorf("invalid check-out date: %w", err)
	}

	var arrival *time.Time
	if raw.ArrivalTime != "" {
		if t, err := lobbypms.ParseTimestamp(raw.ArrivalTime); err == nil {
			arrival = &t
		} else {
			m.log.Debugw("ignoring unparseable arrival time",
				"reservation", raw.ExternalID(), "value", raw.ArrivalTime)
		}
	}

	roomNumber, roomDescription := raw.RoomFields()
	_, total, amountsKnown := raw.Amounts()
	amount := total
	if !amountsKnown && existing != nil {
		amount = existing.Amount
	}

	row := &model.Reservation{
		LobbyReservationID: raw.ExternalID(),
		GuestName:          raw.GuestFullName(),
		GuestEmail:         raw.GuestEmailAddress(),
		GuestPhone:         raw.GuestPhoneNumber(),
		GuestNationality:   raw.GuestNationality(),
		CheckInDate:        checkIn,
		CheckOutDate:       checkOut,
		ArrivalTime:        arrival,
		RoomNumber:         roomNumber,
		RoomDescription:    roomDescription,
		CategoryID:         raw.CategoryIDValue(),
		Status:             mapStatus(raw),
		PaymentStatus:      mapPaymentStatus(raw),
		Amount:             amount,
		Currency:           raw.Currency,
		OrganizationID:     organizationID,
		BranchID:           branchID,
	}

	// check_in_data_uploaded is monotonic: once set it never clears, and
	// the timestamp records the first transition only.
	uploaded := raw.HasCheckInData()
	if existing != nil && existing.CheckInDataUploaded {
		row.CheckInDataUploaded = true
		row.CheckInDataUploadedAt = existing.CheckInDataUploadedAt
	} else if uploaded {
		now := time.Now()
		row.CheckInDataUploaded = true
		row.CheckInDataUploadedAt = &now
	}

	if existing != nil {
		row.PaymentDeadline = existing.PaymentDeadline
		row.AutoCancelEnabled = existing.AutoCancelEnabled
		row.DoorPin = existing.DoorPin
	}
	return row, nil
}

func (m *Mapper) appendHistory(ctx context.Context, reservationID int64, raw *lobbypms.RawReservation) {
	payload, err := json.Marshal(raw)
	if err != nil {
		payload = nil
	}
	entry := &model.ReservationSyncHistory{
		ReservationID: reservationID,
		SyncType:      model.SyncTypeUpdated,
		SyncData:      payload,
	}
	if err := m.store.AppendSyncHistory(ctx, entry); err != nil {
		m.log.Errorw("failed to record sync history", "reservationId", reservationID, "error", err)
	}
}

// runSideEffects fires the post-persist effects. Each runs in its own error
// boundary so one failing integration never poisons the sync itself or the
// other effects.
func (m *Mapper) runSideEffects(ctx context.Context, existing, persisted *model.Reservation) {
	if m.tasks != nil {
		event := "reservation.updated"
		if existing == nil {
			event = "reservation.created"
		}
		m.tasks.DispatchReservationEvent(ctx, persisted, event)
	}

	m.maybeIssuePin(ctx, existing, persisted)
}

// maybeIssuePin issues a door PIN exactly once per reservation, on the sync
// where the check-in data flag first flips to true, and only once the
// reservation is fully paid.
func (m *Mapper) maybeIssuePin(ctx context.Context, existing, persisted *model.Reservation) {
	if m.pins == nil {
		return
	}
	transitioned := persisted.CheckInDataUploaded &&
		(existing == nil || !existing.CheckInDataUploaded)
	if !transitioned || persisted.PaymentStatus != model.PaymentPaid || persisted.DoorPin != nil {
		return
	}

	pin, err := m.pins.IssuePin(ctx, persisted)
	if err != nil {
		m.log.Errorw("failed to issue door pin",
			"reservationId", persisted.ID, "error", err)
		m.metrics.SyncErrors.WithLabelValues("pin").Inc()
		return
	}
	if err := m.store.SetDoorPin(ctx, persisted.ID, pin); err != nil {
		m.log.Errorw("failed to store door pin",
			"reservationId", persisted.ID, "error", err)
		return
	}
	m.log.Infow("door pin issued", "reservationId", persisted.ID)
	if m.notifier != nil {
		m.notifier.NotifyPinIssued(persisted.ID)
	}
}

// mapStatus normalizes the lifecycle status. The explicit checked_in and
// checked_out booleans outrank the freeform status string, which arrives in
// English or Spanish depending on the property's locale.
func mapStatus(raw *lobbypms.RawReservation) string {
	if raw.CheckedOut != nil && *raw.CheckedOut {
		return model.StatusCheckedOut
	}
	if raw.CheckedIn != nil && *raw.CheckedIn {
		return model.StatusCheckedIn
	}

	switch normalizeToken(raw.Status) {
	case "checked_in", "check_in", "checkin", "ingresado":
		return model.StatusCheckedIn
	case "checked_out", "check_out", "checkout":
		return model.StatusCheckedOut
	case "cancelled", "canceled", "cancelado", "cancelada":
		return model.StatusCancelled
	case "no_show", "noshow", "no_aparecio", "no_apareció":
		return model.StatusNoShow
	default:
		return model.StatusConfirmed
	}
}

// mapPaymentStatus derives the payment state from the amounts when the
// payload carries them, since the amounts are more reliable than the
// freeform payment_status string.
func mapPaymentStatus(raw *lobbypms.RawReservation) string {
	paid, total, ok := raw.Amounts()
	if ok {
		if total > 0 && paid >= total {
			return model.PaymentPaid
		}
		if paid > 0 {
			return model.PaymentPartiallyPaid
		}
	}

	switch normalizeToken(raw.PaymentStatus) {
	case "paid", "pagado", "pagada":
		return model.PaymentPaid
	case "partially_paid", "partial", "parcial":
		return model.PaymentPartiallyPaid
	case "refunded", "reembolsado":
		return model.PaymentRefunded
	default:
		return model.PaymentPending
	}
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
