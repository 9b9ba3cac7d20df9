package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/models"
)

// reportsQuery builds a SearchQuery from the shared query-string filters
// used by both the preview and export endpoints, so the two never drift.
func (h *handlers) reportsQuery(c *gin.Context) models.SearchQuery {
	q := models.SearchQuery{Text: c.Query("q"), Limit: models.MaxSearchLimit}
	if status := c.Query("status"); status != "" {
		s := models.Status(status)
		q.Status = &s
	}
	if dept := c.Query("department"); dept != "" {
		q.Department = &dept
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			q.From = &t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			q.To = &t
		}
	}
	if page := c.Query("page"); page != "" {
		if n, err := strconv.Atoi(page); err == nil {
			q.Page = n
		}
	}
	return q
}

func (h *handlers) reportsPage(c *gin.Context) {
	htmlPage(c, "admin-reports", gin.H{})
}

func (h *handlers) reportsPreview(c *gin.Context) {
	results, err := h.d.Packages.Search(c.Request.Context(), h.reportsQuery(c))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"results": results})
}

// reportsExport streams the same projection as a CSV download. CSV
// writing mechanics are peripheral plumbing (spec.md 1); this produces
// the bytes an external collaborator (a browser's Save dialog) consumes.
func (h *handlers) reportsExport(c *gin.Context) {
	q := h.reportsQuery(c)
	q.Limit = models.MaxSearchLimit
	results, err := h.d.Packages.Search(c.Request.Context(), q)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="packages-%s.csv"`, time.Now().UTC().Format("20060102")))
	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"tracking_no", "carrier", "recipient_name", "recipient_department", "status", "created_at"})
	for _, r := range results {
		_ = w.Write([]string{
			r.Package.TrackingNo,
			r.Package.Carrier,
			r.RecipientName,
			r.RecipientDept,
			string(r.Package.Status),
			r.Package.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
}
