package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/middleware"
	"github.com/bpsong/mailroom/internal/models"
)

func (h *handlers) dashboard(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	results, err := h.d.Packages.Search(c.Request.Context(), models.SearchQuery{Limit: 20})
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	htmlPage(c, "dashboard", gin.H{"user": user.Summary(), "recent_packages": results})
}

// adminDashboard implements GET /admin/dashboard's JSON summary: counts
// by package status, plus the total number of users. No recipient total
// is reported.
func (h *handlers) adminDashboard(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.d.Packages.CountByStatus(ctx)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	users, err := h.d.Identity.ListUsers(ctx)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	writeJSON(c, http.StatusOK, gin.H{
		"package_counts_by_status": counts,
		"total_users":              len(users),
	})
}
