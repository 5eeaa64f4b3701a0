package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"reservation-sync-backend/internal/model"
)

// WebhookClient forwards reservation events to the task automation webhook
// so downstream tooling can open cleaning and preparation tasks. Delivery
// is fire-and-forget: failures are logged, never propagated.
type WebhookClient struct {
	url  string
	http *http.Client
	log  *zap.SugaredLogger
}

// NewWebhookClient creates a webhook client. An empty URL disables
// dispatch entirely.
func NewWebhookClient(url string, log *zap.SugaredLogger) *WebhookClient {
	return &WebhookClient{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

type reservationEvent struct {
	Event         string `json:"event"`
	ReservationID int64  `json:"reservationId"`
	LobbyID       string `json:"lobbyReservationId"`
	GuestName     string `json:"guestName"`
	CheckInDate   string `json:"checkInDate"`
	CheckOutDate  string `json:"checkOutDate"`
	RoomNumber    string `json:"roomNumber,omitempty"`
	Room          string `json:"roomDescription,omitempty"`
	Status        string `json:"status"`
	BranchID      int64  `json:"branchId"`
}

// DispatchReservationEvent posts one event to the webhook.
func (c *WebhookClient) DispatchReservationEvent(ctx context.Context, r *model.Reservation, event string) {
	if c.url == "" {
		return
	}

	payload, err := json.Marshal(reservationEvent{
		Event:         event,
		ReservationID: r.ID,
		LobbyID:       r.LobbyReservationID,
		GuestName:     r.GuestName,
		CheckInDate:   r.CheckInDate.Format("2006-01-02"),
		CheckOutDate:  r.CheckOutDate.Format("2006-01-02"),
		RoomNumber:    r.RoomNumber,
		Room:          r.RoomDescription,
		Status:        r.Status,
		BranchID:      r.BranchID,
	})
	if err != nil {
		c.log.Errorw("failed to build webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		c.log.Errorw("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnw("task webhook unreachable", "event", event, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warnw("task webhook rejected event", "event", event, "status", resp.StatusCode)
	}
}
