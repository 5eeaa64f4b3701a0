package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"reservation-sync-backend/config"
	"reservation-sync-backend/internal/lobbypms"
	"reservation-sync-backend/internal/model"
	"reservation-sync-backend/internal/settings"
	"reservation-sync-backend/internal/store"
	syncsvc "reservation-sync-backend/internal/sync"
	"reservation-sync-backend/pkg/logger"
	"reservation-sync-backend/pkg/metrics"
)

type testEnv struct {
	router *gin.Engine
	store  store.Store
	branch *model.Branch
}

// newTestEnv wires the whole stack against an in-memory database and a stub
// PMS server.
func newTestEnv(t *testing.T, pmsURL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:api-%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Organization{}, &model.Branch{}, &model.Reservation{},
		&model.ReservationSyncHistory{}, &model.PushSubscription{},
	))
	st := store.NewGormStore(db)

	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x33}, 32))
	cipher, err := settings.NewCipher(key)
	require.NoError(t, err)

	org := &model.Organization{Name: "API Org"}
	require.NoError(t, db.Create(org).Error)
	blob, err := cipher.EncryptBranchSettings(&settings.LobbyPmsSettings{
		APIKey:     "api-key",
		APIURL:     pmsURL,
		PropertyID: "prop-1",
	})
	require.NoError(t, err)
	branch := &model.Branch{OrganizationID: org.ID, Name: "API Branch", LobbyPmsSettings: blob}
	require.NoError(t, db.Create(branch).Error)

	log := logger.NewNop()
	m := metrics.NewFor("apitest", prometheus.NewRegistry())
	resolver := settings.NewResolver(st, cipher, log)
	branches := syncsvc.NewBranchResolver(st, resolver, log)
	mapper := syncsvc.NewMapper(st, m, log, nil, nil, nil)

	newClient := func(s *settings.Settings) *lobbypms.Client {
		return lobbypms.NewClient(s, log)
	}
	syncCfg := config.SyncConfig{PageSize: 100, EmptyPageThreshold: 1, MaxPages: 5, WindowPastHours: 24, WindowFutureDays: 30}
	orchestrator := syncsvc.NewOrchestrator(st, resolver, branches, mapper, syncCfg, m, log,
		func(s *settings.Settings) syncsvc.PMSClient { return newClient(s) })
	autoCancel := syncsvc.NewAutoCanceller(st, resolver, config.AutoCancelConfig{Reason: "expired"}, m, log,
		func(s *settings.Settings) syncsvc.PMSClient { return newClient(s) })

	handler := NewHandler(st, resolver, branches, orchestrator, autoCancel, mapper,
		&webpush.Options{VAPIDPublicKey: "test-public-key"}, newClient, log)

	serverCfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 1}
	return &testEnv{
		router: NewRouter(handler, serverCfg),
		store:  st,
		branch: branch,
	}
}

func (e *testEnv) do(method, path string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// stubPMS serves a one-booking listing in the {data, meta} shape.
func stubPMS(t *testing.T) *httptest.Server {
	t.Helper()
	now := time.Now()
	booking := fmt.Sprintf(`{
		"booking_id": "api-555",
		"holder": {"name": "Ana", "surname": "Gomez"},
		"start_date": %q,
		"end_date": %q,
		"created_at": %q,
		"status": "confirmed",
		"paid_out": 0,
		"total_to_pay": 80
	}`,
		now.AddDate(0, 0, 3).Format("2006-01-02"),
		now.AddDate(0, 0, 5).Format("2006-01-02"),
		now.Format("2006-01-02 15:04:05"))

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v1/bookings"):
			if r.URL.Query().Get("check_out_from") != "" {
				w.Write([]byte(`{"data": [], "meta": {"total_pages": 1}}`))
				return
			}
			if r.URL.Query().Get("page") == "1" {
				fmt.Fprintf(w, `{"data": [%s], "meta": {"total_pages": 1}}`, booking)
				return
			}
			w.Write([]byte(`{"data": [], "meta": {"total_pages": 1}}`))
		case r.URL.Path == "/api/v1/health":
			w.Write([]byte(`{"status": "ok"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
		}
	}))
}

func TestTriggerBranchSync_EndToEnd(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	w := env.do(http.MethodPost, fmt.Sprintf("/api/sync/branches/%d", env.branch.ID), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result syncsvc.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 0, result.Errors)

	row, err := env.store.FindReservationByLobbyID(context.Background(), "api-555")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "Ana Gomez", row.GuestName)
}

func TestTriggerBranchSync_UnknownBranch(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	w := env.do(http.MethodPost, "/api/sync/branches/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndGetReservations(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	require.Equal(t, http.StatusOK,
		env.do(http.MethodPost, fmt.Sprintf("/api/sync/branches/%d", env.branch.ID), "").Code)

	w := env.do(http.MethodGet, fmt.Sprintf("/api/reservations?branch_id=%d", env.branch.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	var listed []model.Reservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	w = env.do(http.MethodGet, fmt.Sprintf("/api/reservations/%d", listed[0].ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Reservation model.Reservation              `json:"reservation"`
		SyncHistory []model.ReservationSyncHistory `json:"syncHistory"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "api-555", detail.Reservation.LobbyReservationID)
	assert.NotEmpty(t, detail.SyncHistory)

	w = env.do(http.MethodGet, "/api/reservations/99999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPMSHealth(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	w := env.do(http.MethodGet, fmt.Sprintf("/api/pms/health?branch_id=%d", env.branch.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy":true`)

	w = env.do(http.MethodGet, "/api/pms/health", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	put := fmt.Sprintf(`{"endpoint": "https://push/x", "p256dh": "p", "auth": "a", "branchId": %d}`, env.branch.ID)
	w := env.do(http.MethodPut, "/api/subscriptions", put)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/subscriptions?endpoint=https://push/x", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fmt.Sprintf(`"branchId":%d`, env.branch.ID))

	w = env.do(http.MethodDelete, "/api/subscriptions", `{"endpoint": "https://push/x"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodGet, "/api/subscriptions?endpoint=https://push/x", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutSubscription_ValidatesBody(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	w := env.do(http.MethodPut, "/api/subscriptions", `{"endpoint": "https://push/x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	w := env.do(http.MethodGet, "/api/vapid_public_key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test-public-key")
}

func TestListPropertyAssignments(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	w := env.do(http.MethodGet, "/api/admin/property-ids", "")
	require.Equal(t, http.StatusOK, w.Code)

	var assignments []propertyAssignment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &assignments))
	require.Len(t, assignments, 1)
	assert.Equal(t, "prop-1", assignments[0].PropertyID)
	assert.False(t, assignments[0].Duplicate)
}

func TestListTomorrowArrivals(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	tomorrow := time.Now().AddDate(0, 0, 1)
	checkIn := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, time.Local)
	arrival := checkIn.Add(19 * time.Hour)
	require.NoError(t, env.store.DB().Create(&model.Reservation{
		LobbyReservationID: "arr-1",
		GuestName:          "Night Owl",
		CheckInDate:        checkIn,
		CheckOutDate:       checkIn.AddDate(0, 0, 2),
		ArrivalTime:        &arrival,
		Status:             model.StatusConfirmed,
		PaymentStatus:      model.PaymentPending,
		OrganizationID:     1,
		BranchID:           env.branch.ID,
	}).Error)

	w := env.do(http.MethodGet, "/api/arrivals/tomorrow", "")
	require.Equal(t, http.StatusOK, w.Code)
	var arrivals []model.Reservation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &arrivals))
	assert.Len(t, arrivals, 1)

	w = env.do(http.MethodGet, "/api/arrivals/tomorrow?after=20:00", "")
	require.Equal(t, http.StatusOK, w.Code)
	arrivals = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &arrivals))
	assert.Empty(t, arrivals)

	w = env.do(http.MethodGet, "/api/arrivals/tomorrow?after=18:00", "")
	require.Equal(t, http.StatusOK, w.Code)
	arrivals = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &arrivals))
	assert.Len(t, arrivals, 1)
}

func TestHealthz(t *testing.T) {
	pms := stubPMS(t)
	defer pms.Close()
	env := newTestEnv(t, pms.URL)

	w := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
