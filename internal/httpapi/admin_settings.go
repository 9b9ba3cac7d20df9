package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/middleware"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/validator"
)

func (h *handlers) settingsPage(c *gin.Context) {
	htmlPage(c, "admin-settings", gin.H{"base_url": h.d.Settings.GetBaseURL(c.Request.Context())})
}

type setQRBaseURLRequest struct {
	Value string `json:"value" validate:"required"`
}

func (h *handlers) setQRBaseURL(c *gin.Context) {
	var req setQRBaseURLRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	actor, _ := middleware.CurrentUser(c)
	if err := h.d.Settings.Set(c.Request.Context(), actor.ID, models.SettingBaseURLKey, req.Value); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "key": models.SettingBaseURLKey, "value": req.Value})
}

func (h *handlers) auditLogs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := h.d.Audit.List(c.Request.Context(), h.d.Store, limit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}
