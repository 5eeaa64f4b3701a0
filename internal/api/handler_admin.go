package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
)

type propertyAssignment struct {
	PropertyID string  `json:"propertyId"`
	BranchIDs  []int64 `json:"branchIds"`
	Duplicate  bool    `json:"duplicate"`
}

// ListPropertyAssignments handles GET /api/admin/property-ids and reports
// which branches claim which PMS property. A property claimed by more than
// one branch means reservation attribution depends on tie-breaking and is
// worth fixing.
func (h *Handler) ListPropertyAssignments(c *gin.Context) {
	var organizationID int64
	if v := c.Query("organization_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization id"})
			return
		}
		organizationID = id
	}

	assignments, err := h.branches.PropertyAssignments(c.Request.Context(), organizationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result := make([]propertyAssignment, 0, len(assignments))
	for propertyID, branchIDs := range assignments {
		result = append(result, propertyAssignment{
			PropertyID: propertyID,
			BranchIDs:  branchIDs,
			Duplicate:  len(branchIDs) > 1,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PropertyID < result[j].PropertyID })

	c.JSON(http.StatusOK, result)
}
