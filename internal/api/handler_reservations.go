package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"reservation-sync-backend/internal/store"
)

// ListReservations handles GET /api/reservations with optional branch_id,
// status, payment_status, from and to (check-in date, YYYY-MM-DD) filters.
func (h *Handler) ListReservations(c *gin.Context) {
	filter := store.ReservationFilter{
		Status:        c.Query("status"),
		PaymentStatus: c.Query("payment_status"),
		Limit:         100,
	}

	if v := c.Query("branch_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch id"})
			return
		}
		filter.BranchID = id
	}
	if v := c.Query("from"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, use YYYY-MM-DD"})
			return
		}
		filter.CheckInFrom = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, use YYYY-MM-DD"})
			return
		}
		filter.CheckInTo = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		filter.Offset = n
	}

	reservations, err := h.store.ListReservations(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reservations)
}

// GetReservation handles GET /api/reservations/:id and includes the most
// recent sync history entries.
func (h *Handler) GetReservation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	reservation, err := h.store.GetReservation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reservation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	history, err := h.store.ListSyncHistory(c.Request.Context(), id, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reservation": reservation,
		"syncHistory": history,
	})
}

// ListTomorrowArrivals handles GET /api/arrivals/tomorrow with optional
// branch_id and after (HH:MM) filters.
func (h *Handler) ListTomorrowArrivals(c *gin.Context) {
	var branchID int64
	if v := c.Query("branch_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch id"})
			return
		}
		branchID = id
	}

	tomorrow := time.Now().AddDate(0, 0, 1)

	var after *time.Time
	if v := c.Query("after"); v != "" {
		t, err := time.Parse("15:04", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after time, use HH:MM"})
			return
		}
		threshold := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(),
			t.Hour(), t.Minute(), 0, 0, time.Local)
		after = &threshold
	}

	arrivals, err := h.store.ListArrivals(c.Request.Context(), branchID, tomorrow, after)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, arrivals)
}
