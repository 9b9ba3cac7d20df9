package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/models"
)

func (h *handlers) listRecipientsPage(c *gin.Context) {
	recipients, err := h.d.Packages.SearchRecipients(c.Request.Context(), "", nil, models.MaxSearchLimit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	htmlPage(c, "recipients", gin.H{"recipients": recipients})
}

// searchRecipients implements GET /recipients/search's content
// negotiation: an `Accept: application/json` request gets a plain JSON
// array (for a type-ahead widget), everything else gets an HTML
// fragment (an HTMX partial in the full product).
func (h *handlers) searchRecipients(c *gin.Context) {
	q := c.Query("q")
	dept := c.Query("department")

	var deptPtr *string
	if dept != "" {
		deptPtr = &dept
	}

	limit := models.MaxSearchLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	matches, err := h.recipientsMatching(c, q, deptPtr, limit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	if c.GetHeader("Accept") == "application/json" {
		writeJSON(c, http.StatusOK, matches)
		return
	}
	htmlPage(c, "recipients-search-partial", gin.H{"recipients": matches})
}

func (h *handlers) recipientsMatching(c *gin.Context, text string, dept *string, limit int) ([]models.Recipient, error) {
	return h.d.Packages.SearchRecipients(c.Request.Context(), text, dept, limit)
}
