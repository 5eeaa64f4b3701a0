package lobbypms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"reservation-sync-backend/internal/settings"
)

// ErrNotFound indicates the PMS has no reservation with the requested id.
var ErrNotFound = errors.New("reservation not found")

// ErrEndpointNotFound indicates the PMS answered with an HTML page instead
// of JSON, which happens when a stored base URL points at the web app or at
// a retired endpoint path.
var ErrEndpointNotFound = errors.New("lobbypms endpoint not found, check the configured API URL")

const requestTimeout = 30 * time.Second

// Client talks to the LobbyPMS REST API with one tenant's credentials.
// Construct a fresh one per resolved settings; it carries no per-request
// state beyond the learned page count.
type Client struct {
	settings *settings.Settings
	http     *http.Client
	log      *zap.SugaredLogger
}

// NewClient creates a client bound to one tenant's resolved settings.
func NewClient(s *settings.Settings, log *zap.SugaredLogger) *Client {
	return &Client{
		settings: s,
		http:     &http.Client{Timeout: requestTimeout},
		log:      log,
	}
}

// ListFilters narrows a reservation listing. Zero values mean "no filter".
type ListFilters struct {
	Page         int
	PerPage      int
	CheckOutFrom time.Time
	CreatedFrom  time.Time
}

// envelope covers the response shapes the listing endpoints are known to
// produce: {data, meta}, a bare array, or {success, data}.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *PageMeta       `json:"meta"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// ListReservations fetches one page of reservations. The returned meta is
// nil when the API omitted the pagination block.
func (c *Client) ListReservations(ctx context.Context, f ListFilters) ([]RawReservation, *PageMeta, error) {
	q := url.Values{}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(f.PerPage))
	}
	if !f.CheckOutFrom.IsZero() {
		q.Set("check_out_from", f.CheckOutFrom.Format("2006-01-02"))
	}
	if !f.CreatedFrom.IsZero() {
		q.Set("created_from", f.CreatedFrom.Format("2006-01-02"))
	}
	if c.settings.PropertyID != "" {
		q.Set("property_id", c.settings.PropertyID)
	}

	body, err := c.get(ctx, "/api/v1/bookings", q)
	if err != nil {
		return nil, nil, err
	}

	items, meta, err := decodeListEnvelope(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse reservations page %d: %w", f.Page, err)
	}
	return items, meta, nil
}

// GetReservation fetches one reservation by its external id.
func (c *Client) GetReservation(ctx context.Context, externalID string) (*RawReservation, error) {
	body, err := c.get(ctx, "/api/v1/bookings/"+url.PathEscape(externalID), nil)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 && env.Data[0] == '{' {
		body = env.Data
	}
	var raw RawReservation
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse reservation %s: %w", externalID, err)
	}
	if raw.ExternalID() == "" {
		return nil, ErrNotFound
	}
	return &raw, nil
}

// CreateReservationRequest is the payload for creating a booking in the PMS.
type CreateReservationRequest struct {
	PropertyID   string  `json:"property_id,omitempty"`
	CategoryID   string  `json:"category_id"`
	GuestName    string  `json:"guest_name"`
	GuestEmail   string  `json:"guest_email,omitempty"`
	GuestPhone   string  `json:"guest_phone,omitempty"`
	CheckInDate  string  `json:"start_date"`
	CheckOutDate string  `json:"end_date"`
	Guests       int     `json:"guests,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	Currency     string  `json:"currency,omitempty"`
}

// CreateReservation creates a booking and returns its external id.
func (c *Client) CreateReservation(ctx context.Context, req *CreateReservationRequest) (string, error) {
	if req.PropertyID == "" {
		req.PropertyID = c.settings.PropertyID
	}
	body, err := c.send(ctx, http.MethodPost, "/api/v1/bookings", req)
	if err != nil {
		return "", err
	}

	var env envelope
	payload := body
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}
	var created RawReservation
	if err := json.Unmarshal(payload, &created); err != nil {
		return "", fmt.Errorf("failed to parse create response: %w", err)
	}
	if created.ExternalID() == "" {
		return "", errors.New("create response carried no booking id")
	}
	return created.ExternalID(), nil
}

// UpdateReservationStatus pushes a status change to the PMS, e.g. a cancel.
func (c *Client) UpdateReservationStatus(ctx context.Context, externalID, status string) error {
	path := "/api/v1/bookings/" + url.PathEscape(externalID) + "/status"
	_, err := c.send(ctx, http.MethodPut, path, map[string]string{"status": status})
	return err
}

// ListAvailableRooms fetches availability for a date range and flattens the
// per-day category lists into one slice.
func (c *Client) ListAvailableRooms(ctx context.Context, start, end time.Time) ([]AvailableRoom, error) {
	q := url.Values{}
	q.Set("start_date", start.Format("2006-01-02"))
	q.Set("end_date", end.Format("2006-01-02"))
	if c.settings.PropertyID != "" {
		q.Set("property_id", c.settings.PropertyID)
	}

	body, err := c.get(ctx, "/api/v2/available-rooms", q)
	if err != nil {
		return nil, err
	}

	var env envelope
	payload := body
	if err := json.Unmarshal(body, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}
	var days []availabilityDay
	if err := json.Unmarshal(payload, &days); err != nil {
		return nil, fmt.Errorf("failed to parse availability: %w", err)
	}

	var rooms []AvailableRoom
	for _, day := range days {
		for _, cat := range day.Categories {
			roomType := "private"
			if isSharedRoomType(cat.Type) {
				roomType = "shared"
			}
			rooms = append(rooms, AvailableRoom{
				CategoryID:     string(cat.CategoryID),
				RoomName:       cat.Name,
				RoomType:       roomType,
				AvailableRooms: cat.AvailableRooms,
				PricePerNight:  float64(cat.PricePerNight),
				Currency:       cat.Currency,
				Date:           day.Date,
			})
		}
	}
	return rooms, nil
}

// HealthCheck probes the PMS with the configured credentials. It tries the
// health endpoint first and falls back to listing properties, since older
// deployments have no health route.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.get(ctx, "/api/v1/health", nil); err == nil {
		return nil
	}
	_, err := c.get(ctx, "/api/v1/properties", nil)
	return err
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.settings.APIBaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.settings.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	req.Header.Set("Accept", "application/json")

	c.log.Debugw("lobbypms request", "method", req.Method, "url", req.URL.Redacted())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lobbypms request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read lobbypms response: %w", err)
	}

	if isHTML(body) {
		c.log.Errorw("lobbypms returned HTML instead of JSON",
			"url", req.URL.Redacted(), "status", resp.StatusCode)
		return nil, ErrEndpointNotFound
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := apiErrorMessage(body)
		c.log.Errorw("lobbypms request rejected",
			"url", req.URL.Redacted(), "status", resp.StatusCode, "message", msg)
		if msg == "" {
			return nil, fmt.Errorf("lobbypms returned status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("lobbypms returned status %d: %s", resp.StatusCode, msg)
	}
	return body, nil
}

// decodeListEnvelope unwraps whichever list shape the API produced.
func decodeListEnvelope(body []byte) ([]RawReservation, *PageMeta, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []RawReservation
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, err
		}
		return items, nil, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, nil, err
	}
	if env.Success != nil && !*env.Success {
		msg := apiErrorMessage(trimmed)
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, nil, errors.New(msg)
	}
	// An object with no data, success or meta key is not a listing at all.
	// Treating it as an empty page would end pagination and report a clean
	// zero-row sync against a broken endpoint.
	if env.Data == nil && env.Success == nil && env.Meta == nil {
		return nil, nil, fmt.Errorf("unrecognized listing payload: %s", truncateForLog(trimmed))
	}
	if len(env.Data) == 0 {
		return nil, env.Meta, nil
	}
	var items []RawReservation
	if err := json.Unmarshal(env.Data, &items); err != nil {
		return nil, nil, err
	}
	return items, env.Meta, nil
}

// apiErrorMessage pulls the most specific message out of an error body,
// preferring error over message.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

func truncateForLog(body []byte) string {
	const max = 120
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}

func isHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	lower := strings.ToLower(string(trimmed[:min(len(trimmed), 15)]))
	return strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html")
}
