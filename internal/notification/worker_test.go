package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/store"
	"reservation-sync-backend/pkg/logger"
)

type fakeSender struct {
	mu         sync.Mutex
	sent       []string
	statusFor  map[string]int
	defaultErr error
}

func (f *fakeSender) endpoints() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeSender) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	if f.defaultErr != nil {
		return nil, f.defaultErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, sub.Endpoint)
	f.mu.Unlock()
	status := http.StatusCreated
	if s, ok := f.statusFor[sub.Endpoint]; ok {
		status = s
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}, nil
}

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

func seedReservation(t *testing.T, st store.Store, branchID int64) *model.Reservation {
	t.Helper()
	r := &model.Reservation{
		LobbyReservationID: "n-1",
		GuestName:          "Ana Gomez",
		CheckInDate:        time.Now(),
		CheckOutDate:       time.Now().AddDate(0, 0, 2),
		Status:             model.StatusCheckedIn,
		PaymentStatus:      model.PaymentPaid,
		OrganizationID:     1,
		BranchID:           branchID,
	}
	require.NoError(t, st.DB().Create(r).Error)
	return r
}

func TestWorkerPool_NotifiesBranchSubscriptions(t *testing.T) {
	st := newTestStore(t)
	r := seedReservation(t, st, 1)

	require.NoError(t, st.SaveSubscription(context.Background(),
		&model.PushSubscription{Endpoint: "https://push/a", P256DH: "p", Auth: "a", BranchID: 1}))
	require.NoError(t, st.SaveSubscription(context.Background(),
		&model.PushSubscription{Endpoint: "https://push/b", P256DH: "p", Auth: "a", BranchID: 1}))
	// A subscription on another branch must not be notified.
	require.NoError(t, st.SaveSubscription(context.Background(),
		&model.PushSubscription{Endpoint: "https://push/other", P256DH: "p", Auth: "a", BranchID: 2}))

	sender := &fakeSender{}
	pool := NewWorkerPool(1, st, &webpush.Options{}, logger.NewNop())
	pool.SetSender(sender)

	pool.notifyForReservation(context.Background(), r.ID)

	assert.ElementsMatch(t, []string{"https://push/a", "https://push/b"}, sender.endpoints())
}

func TestWorkerPool_PrunesExpiredSubscriptions(t *testing.T) {
	st := newTestStore(t)
	r := seedReservation(t, st, 1)

	require.NoError(t, st.SaveSubscription(context.Background(),
		&model.PushSubscription{Endpoint: "https://push/gone", P256DH: "p", Auth: "a", BranchID: 1}))
	require.NoError(t, st.SaveSubscription(context.Background(),
		&model.PushSubscription{Endpoint: "https://push/alive", P256DH: "p", Auth: "a", BranchID: 1}))

	sender := &fakeSender{statusFor: map[string]int{"https://push/gone": http.StatusGone}}
	pool := NewWorkerPool(1, st, &webpush.Options{}, logger.NewNop())
	pool.SetSender(sender)

	pool.notifyForReservation(context.Background(), r.ID)

	remaining, err := st.ListSubscriptionsForBranch(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "https://push/alive", remaining[0].Endpoint)
}

func TestWorkerPool_ProcessesDispatchedJobs(t *testing.T) {
	st := newTestStore(t)
	r := seedReservation(t, st, 1)

	require.NoError(t, st.SaveSubscription(context.Background(),
		&model.PushSubscription{Endpoint: "https://push/a", P256DH: "p", Auth: "a", BranchID: 1}))

	sender := &fakeSender{}
	pool := NewWorkerPool(2, st, &webpush.Options{}, logger.NewNop())
	pool.SetSender(sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	pool.NotifyPinIssued(r.ID)

	assert.Eventually(t, func() bool {
		return len(sender.endpoints()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
