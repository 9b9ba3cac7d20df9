package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/middleware"
)

type changePasswordRequest struct {
	CurrentPassword string `form:"current_password" binding:"required"`
	NewPassword     string `form:"new_password" binding:"required"`
}

func (h *handlers) changePasswordPage(c *gin.Context) {
	htmlPage(c, "change-password", gin.H{"csrf_token": middleware.GetCSRFToken(c)})
}

// changePassword implements the self-service "change my password" flow:
// the caller must prove the current password before a new one is
// accepted (unlike the forced-change and admin-reset paths).
func (h *handlers) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		apperrors.HandleError(c, apperrors.NewValidation("invalid_request", "current and new password are required"))
		return
	}
	user, _ := middleware.CurrentUser(c)

	if _, err := h.d.Identity.Login(c.Request.Context(), user.Username, req.CurrentPassword, clientIP(c), userAgent(c)); err != nil {
		apperrors.HandleError(c, apperrors.NewUnauthenticated("current password is incorrect"))
		return
	}

	if err := h.d.Identity.ChangePassword(c.Request.Context(), user.ID, req.NewPassword, false); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

func (h *handlers) forcePasswordChangePage(c *gin.Context) {
	htmlPage(c, "force-password-change", gin.H{"csrf_token": middleware.GetCSRFToken(c)})
}

type forceChangePasswordRequest struct {
	NewPassword string `form:"new_password" binding:"required"`
}

// forcePasswordChange lets a user whose must_change_password flag is set
// pick a new password without re-proving the (admin-issued) current one.
func (h *handlers) forcePasswordChange(c *gin.Context) {
	var req forceChangePasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		apperrors.HandleError(c, apperrors.NewValidation("invalid_request", "new password is required"))
		return
	}
	user, _ := middleware.CurrentUser(c)

	if err := h.d.Identity.ChangePassword(c.Request.Context(), user.ID, req.NewPassword, true); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "redirect_url": "/dashboard"})
}

func (h *handlers) profile(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	writeJSON(c, http.StatusOK, user.Summary())
}

func (h *handlers) listSessions(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	sessions, err := h.d.Identity.ListSessions(c.Request.Context(), user.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	currentSession, _ := middleware.CurrentSession(c)
	var currentID string
	if currentSession != nil {
		currentID = currentSession.ID
	}
	writeJSON(c, http.StatusOK, gin.H{"sessions": sessions, "current_session_id": currentID})
}

func (h *handlers) terminateSession(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	sessionID := c.Param("id")
	if err := h.d.Identity.TerminateSession(c.Request.Context(), user.ID, sessionID); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}
