package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"reservation-sync-backend/internal/lobbypms"
	"reservation-sync-backend/internal/settings"
)

func (h *Handler) settingsForBranchParam(c *gin.Context) (*settings.Settings, bool) {
	branchID, err := strconv.ParseInt(c.Query("branch_id"), 10, 64)
	if err != nil || branchID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "branch_id is required"})
		return nil, false
	}

	s, err := h.settings.ForBranch(c.Request.Context(), branchID)
	if err != nil {
		if errors.Is(err, settings.ErrNotConfigured) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}

// PMSHealth handles GET /api/pms/health?branch_id= and probes the PMS with
// the branch's credentials.
func (h *Handler) PMSHealth(c *gin.Context) {
	s, ok := h.settingsForBranchParam(c)
	if !ok {
		return
	}

	if err := h.newClient(s).HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"healthy": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"healthy": true})
}

// ListAvailability handles GET /api/availability?branch_id=&start_date=&end_date=.
func (h *Handler) ListAvailability(c *gin.Context) {
	s, ok := h.settingsForBranchParam(c)
	if !ok {
		return
	}

	start, err := time.ParseInLocation("2006-01-02", c.Query("start_date"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date, use YYYY-MM-DD"})
		return
	}
	end, err := time.ParseInLocation("2006-01-02", c.Query("end_date"), time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date, use YYYY-MM-DD"})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date is before start_date"})
		return
	}

	rooms, err := h.newClient(s).ListAvailableRooms(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

type createReservationRequest struct {
	BranchID     int64   `json:"branchId" binding:"required"`
	CategoryID   string  `json:"categoryId" binding:"required"`
	GuestName    string  `json:"guestName" binding:"required"`
	GuestEmail   string  `json:"guestEmail"`
	GuestPhone   string  `json:"guestPhone"`
	CheckInDate  string  `json:"checkInDate" binding:"required"`
	CheckOutDate string  `json:"checkOutDate" binding:"required"`
	Guests       int     `json:"guests"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

// CreateReservation handles POST /api/reservations: the booking is created
// in the PMS first, then pulled back and stored locally. A failure after
// the remote create still reports the new booking id so the next sync run
// can pick the row up.
func (h *Handler) CreateReservation(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.settings.ForBranch(c.Request.Context(), req.BranchID)
	if err != nil {
		if errors.Is(err, settings.ErrNotConfigured) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	client := h.newClient(s)
	externalID, err := client.CreateReservation(c.Request.Context(), &lobbypms.CreateReservationRequest{
		CategoryID:   req.CategoryID,
		GuestName:    req.GuestName,
		GuestEmail:   req.GuestEmail,
		GuestPhone:   req.GuestPhone,
		CheckInDate:  req.CheckInDate,
		CheckOutDate: req.CheckOutDate,
		Guests:       req.Guests,
		Amount:       req.Amount,
		Currency:     req.Currency,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	raw, err := client.GetReservation(c.Request.Context(), externalID)
	if err == nil {
		if persisted, serr := h.mapper.SyncOne(c.Request.Context(), raw, s.OrganizationID, req.BranchID); serr == nil {
			c.JSON(http.StatusCreated, persisted)
			return
		} else {
			err = serr
		}
	}

	h.log.Warnw("created reservation in PMS but could not store it locally",
		"lobbyReservationId", externalID, "error", err)
	c.JSON(http.StatusCreated, gin.H{"lobbyReservationId": externalID})
}
