package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"reservation-sync-backend/internal/lobbypms"
	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/store"
	"reservation-sync-backend/pkg/logger"
	"reservation-sync-backend/pkg/metrics"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Organization{}, &model.Branch{}, &model.Reservation{},
		&model.ReservationSyncHistory{}, &model.PushSubscription{},
	))
	return store.NewGormStore(db)
}

func newTestMetrics() *metrics.Metrics {
	return metrics.NewFor("test", prometheus.NewRegistry())
}

type fakePinIssuer struct {
	pins  int
	fail  bool
	value string
}

func (f *fakePinIssuer) IssuePin(_ context.Context, _ *model.Reservation) (string, error) {
	if f.fail {
		return "", assert.AnError
	}
	f.pins++
	if f.value == "" {
		return "424242", nil
	}
	return f.value, nil
}

type fakeNotifier struct {
	notified []int64
}

func (f *fakeNotifier) NotifyPinIssued(id int64) {
	f.notified = append(f.notified, id)
}

type fakeTasks struct {
	events []string
}

func (f *fakeTasks) DispatchReservationEvent(_ context.Context, _ *model.Reservation, event string) {
	f.events = append(f.events, event)
}

func mustRaw(t *testing.T, payload string) *lobbypms.RawReservation {
	t.Helper()
	var raw lobbypms.RawReservation
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return &raw
}

func TestMapper_SyncOne(t *testing.T) {
	st := newTestStore(t)
	tasks := &fakeTasks{}
	mapper := NewMapper(st, newTestMetrics(), logger.NewNop(), nil, nil, tasks)
	ctx := context.Background()

	raw := mustRaw(t, `{
		"booking_id": 555,
		"holder": {"name": "Ana", "surname": "Gomez", "country": "ES"},
		"start_date": "2025-03-01",
		"end_date": "2025-03-05",
		"checked_in": true,
		"paid_out": "100.00",
		"total_to_pay": "100.00",
		"currency": "EUR"
	}`)

	persisted, err := mapper.SyncOne(ctx, raw, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, "555", persisted.LobbyReservationID)
	assert.Equal(t, "Ana Gomez", persisted.GuestName)
	assert.Equal(t, "ES", persisted.GuestNationality)
	assert.Equal(t, model.StatusCheckedIn, persisted.Status)
	assert.Equal(t, model.PaymentPaid, persisted.PaymentStatus)
	assert.Equal(t, 100.0, persisted.Amount)
	assert.Equal(t, int64(1), persisted.OrganizationID)
	assert.Equal(t, int64(10), persisted.BranchID)

	assert.Equal(t, 2025, persisted.CheckInDate.Year())
	assert.Equal(t, time.March, persisted.CheckInDate.Month())
	assert.Equal(t, 1, persisted.CheckInDate.Day())

	history, err := st.ListSyncHistory(ctx, persisted.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.SyncTypeUpdated, history[0].SyncType)

	assert.Equal(t, []string{"reservation.created"}, tasks.events)
}

func TestMapper_SyncOneIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	tasks := &fakeTasks{}
	mapper := NewMapper(st, newTestMetrics(), logger.NewNop(), nil, nil, tasks)
	ctx := context.Background()

	payload := `{"booking_id": "777", "start_date": "2025-04-01", "end_date": "2025-04-02", "status": "confirmed"}`

	first, err := mapper.SyncOne(ctx, mustRaw(t, payload), 1, 10)
	require.NoError(t, err)
	second, err := mapper.SyncOne(ctx, mustRaw(t, payload), 1, 10)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int64
	st.DB().Model(&model.Reservation{}).Count(&count)
	assert.Equal(t, int64(1), count)

	history, err := st.ListSyncHistory(ctx, first.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	assert.Equal(t, []string{"reservation.created", "reservation.updated"}, tasks.events)
}

func TestMapper_MissingBranchFailsFast(t *testing.T) {
	st := newTestStore(t)
	mapper := NewMapper(st, newTestMetrics(), logger.NewNop(), nil, nil, nil)

	raw := mustRaw(t, `{"booking_id": "888", "start_date": "2025-04-01", "end_date": "2025-04-02"}`)
	_, err := mapper.SyncOne(context.Background(), raw, 1, 0)
	assert.ErrorIs(t, err, ErrMissingBranch)

	var count int64
	st.DB().Model(&model.Reservation{}).Count(&count)
	assert.Equal(t, int64(0), count, "no row may be written without a branch")
}

func TestMapper_CheckInDataFlagIsMonotonic(t *testing.T) {
	st := newTestStore(t)
	mapper := NewMapper(st, newTestMetrics(), logger.NewNop(), nil, nil, nil)
	ctx := context.Background()

	withoutDocs := `{"booking_id": "901", "start_date": "2025-05-01", "end_date": "2025-05-03"}`
	withDocs := `{"booking_id": "901", "start_date": "2025-05-01", "end_date": "2025-05-03",
		"holder": {"document_type": "passport", "document_number": "X99"}}`

	first, err := mapper.SyncOne(ctx, mustRaw(t, withoutDocs), 1, 10)
	require.NoError(t, err)
	assert.False(t, first.CheckInDataUploaded)
	assert.Nil(t, first.CheckInDataUploadedAt)

	second, err := mapper.SyncOne(ctx, mustRaw(t, withDocs), 1, 10)
	require.NoError(t, err)
	assert.True(t, second.CheckInDataUploaded)
	require.NotNil(t, second.CheckInDataUploadedAt)
	uploadedAt := *second.CheckInDataUploadedAt

	// The flag and its timestamp survive a later payload without documents.
	third, err := mapper.SyncOne(ctx, mustRaw(t, withoutDocs), 1, 10)
	require.NoError(t, err)
	assert.True(t, third.CheckInDataUploaded)
	require.NotNil(t, third.CheckInDataUploadedAt)
	assert.WithinDuration(t, uploadedAt, *third.CheckInDataUploadedAt, time.Second)
}

func TestMapper_PinIssuance(t *testing.T) {
	paidWithDocs := `{"booking_id": "911", "start_date": "2025-05-01", "end_date": "2025-05-03",
		"checkin_online": true, "paid_out": 50, "total_to_pay": 50}`
	pendingWithDocs := `{"booking_id": "912", "start_date": "2025-05-01", "end_date": "2025-05-03",
		"checkin_online": true, "paid_out": 0, "total_to_pay": 50}`

	t.Run("issued once on the paid transition", func(t *testing.T) {
		st := newTestStore(t)
		pins := &fakePinIssuer{}
		notifier := &fakeNotifier{}
		mapper := NewMapper(st, newTestMetrics(), logger.NewNop(), pins, notifier, nil)
		ctx := context.Background()

		persisted, err := mapper.SyncOne(ctx, mustRaw(t, paidWithDocs), 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, pins.pins)
		assert.Equal(t, []int64{persisted.ID}, notifier.notified)

		reloaded, err := st.GetReservation(ctx, persisted.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.DoorPin)
		assert.Equal(t, "424242", *reloaded.DoorPin)

		// A later sync of the same payload must not issue again.
		_, err = mapper.SyncOne(ctx, mustRaw(t, paidWithDocs), 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, pins.pins)
		assert.Len(t, notifier.notified, 1)
	})

	t.Run("not issued while payment is pending", func(t *testing.T) {
		st := newTestStore(t)
		pins := &fakePinIssuer{}
		mapper := NewMapper(st, newTestMetrics(), logger.NewNop(), pins, &fakeNotifier{}, nil)

		_, err := mapper.SyncOne(context.Background(), mustRaw(t, pendingWithDocs), 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, pins.pins)
	})

	t.Run("issuer failure does not fail the sync", func(t *testing.T) {
		st := newTestStore(t)
		pins := &fakePinIssuer{fail: true}
		mapper := NewMapper(st, newTestMetrics(), logger.NewNop(), pins, &fakeNotifier{}, nil)

		persisted, err := mapper.SyncOne(context.Background(), mustRaw(t, paidWithDocs), 1, 10)
		require.NoError(t, err)
		assert.Nil(t, persisted.DoorPin)
	})
}

func TestMapStatus(t *testing.T) {
	boolTrue := true
	testCases := []struct {
		name     string
		raw      lobbypms.RawReservation
		expected string
	}{
		{"checked_out flag wins", lobbypms.RawReservation{CheckedOut: &boolTrue, Status: "confirmed"}, model.StatusCheckedOut},
		{"checked_in flag wins", lobbypms.RawReservation{CheckedIn: &boolTrue, Status: "cancelled"}, model.StatusCheckedIn},
		{"english checked in", lobbypms.RawReservation{Status: "checked_in"}, model.StatusCheckedIn},
		{"spanish checked in", lobbypms.RawReservation{Status: "Ingresado"}, model.StatusCheckedIn},
		{"check-in with hyphen", lobbypms.RawReservation{Status: "check-in"}, model.StatusCheckedIn},
		{"english cancelled", lobbypms.RawReservation{Status: "cancelled"}, model.StatusCancelled},
		{"spanish cancelled", lobbypms.RawReservation{Status: "Cancelado"}, model.StatusCancelled},
		{"english no show", lobbypms.RawReservation{Status: "no_show"}, model.StatusNoShow},
		{"spanish no show", lobbypms.RawReservation{Status: "No Aparecio"}, model.StatusNoShow},
		{"unknown defaults to confirmed", lobbypms.RawReservation{Status: "whatever"}, model.StatusConfirmed},
		{"empty defaults to confirmed", lobbypms.RawReservation{}, model.StatusConfirmed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mapStatus(&tc.raw))
		})
	}
}

func TestMapPaymentStatus(t *testing.T) {
	amount := func(v float64) *lobbypms.FlexFloat {
		f := lobbypms.FlexFloat(v)
		return &f
	}

	testCases := []struct {
		name     string
		raw      lobbypms.RawReservation
		expected string
	}{
		{"fully paid", lobbypms.RawReservation{PaidOut: amount(100), TotalToPay: amount(100)}, model.PaymentPaid},
		{"overpaid", lobbypms.RawReservation{PaidOut: amount(120), TotalToPay: amount(100)}, model.PaymentPaid},
		{"partially paid", lobbypms.RawReservation{PaidOut: amount(40), TotalToPay: amount(100)}, model.PaymentPartiallyPaid},
		{"zero total falls back to string", lobbypms.RawReservation{PaidOut: amount(0), TotalToPay: amount(0), PaymentStatus: "paid"}, model.PaymentPaid},
		{"no amounts, spanish paid", lobbypms.RawReservation{PaymentStatus: "Pagado"}, model.PaymentPaid},
		{"no amounts, refunded", lobbypms.RawReservation{PaymentStatus: "refunded"}, model.PaymentRefunded},
		{"accommodation total", lobbypms.RawReservation{PaidOut: amount(30), TotalToPayAccommodation: amount(60)}, model.PaymentPartiallyPaid},
		{"nothing known", lobbypms.RawReservation{}, model.PaymentPending},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mapPaymentStatus(&tc.raw))
		})
	}
}
