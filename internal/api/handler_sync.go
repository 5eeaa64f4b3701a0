package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"reservation-sync-backend/internal/settings"
)

// TriggerSync handles POST /api/sync and runs a full sync across all
// branches synchronously.
func (h *Handler) TriggerSync(c *gin.Context) {
	results := h.orchestrator.SyncAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// TriggerBranchSync handles POST /api/sync/branches/:branch_id.
func (h *Handler) TriggerBranchSync(c *gin.Context) {
	branchID, err := strconv.ParseInt(c.Param("branch_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch id"})
		return
	}

	result, err := h.orchestrator.SyncBranch(c.Request.Context(), branchID)
	if err != nil {
		if errors.Is(err, settings.ErrNotConfigured) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// TriggerAutoCancel handles POST /api/auto-cancel/run and performs one
// auto-cancel sweep immediately.
func (h *Handler) TriggerAutoCancel(c *gin.Context) {
	cancelled := h.autoCancel.Run(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}
