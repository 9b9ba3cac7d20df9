package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bpsong/mailroom/internal/access"
	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/middleware"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/validator"
)

func (h *handlers) listUsersPage(c *gin.Context) {
	users, err := h.d.Identity.ListUsers(c.Request.Context())
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	htmlPage(c, "admin-users", gin.H{"users": users})
}

func (h *handlers) newUserPage(c *gin.Context) {
	htmlPage(c, "admin-user-new", gin.H{"csrf_token": middleware.GetCSRFToken(c)})
}

// createUser implements POST /admin/users/new. An admin creating an
// account is itself gated by AccessPolicy (admin may only create
// operators; super_admin may create any role).
func (h *handlers) createUser(c *gin.Context) {
	var req models.CreateUserRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	actor := actorFrom(c)
	if decision := access.Check(actor, access.ActionManageUser, "", req.Role); !decision.Allowed {
		apperrors.HandleError(c, apperrors.NewForbidden(decision.Reason, "not permitted to create a user with this role"))
		return
	}

	user, err := h.d.Identity.CreateUser(c.Request.Context(), req, actor.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, user.Summary())
}

func (h *handlers) editUserPage(c *gin.Context) {
	user, err := h.d.Identity.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	htmlPage(c, "admin-user-edit", gin.H{"user": user.Summary(), "csrf_token": middleware.GetCSRFToken(c)})
}

// updateUser implements PUT /admin/users/{id}/edit. A role change is
// checked against CanChangeRole (super_admin-only, no self-downgrade);
// every other field change only needs ActionManageUser.
func (h *handlers) updateUser(c *gin.Context) {
	var req models.UpdateUserRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	targetID := c.Param("id")
	target, err := h.d.Identity.GetUser(c.Request.Context(), targetID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	actor := actorFrom(c)
	if req.Role != nil && *req.Role != target.Role {
		if decision := access.CanChangeRole(actor, targetID, *req.Role); !decision.Allowed {
			apperrors.HandleError(c, apperrors.NewForbidden(decision.Reason, "not permitted to change this user's role"))
			return
		}
	}
	if decision := access.Check(actor, access.ActionManageUser, targetID, target.Role); !decision.Allowed {
		apperrors.HandleError(c, apperrors.NewForbidden(decision.Reason, "not permitted to edit this user"))
		return
	}

	updated, err := h.d.Identity.UpdateUser(c.Request.Context(), targetID, req, actor.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, updated.Summary())
}

// deactivateUser implements POST /admin/users/{id}/deactivate, folding
// in the "never self-deactivate" rule via CanDeactivate.
func (h *handlers) deactivateUser(c *gin.Context) {
	targetID := c.Param("id")
	target, err := h.d.Identity.GetUser(c.Request.Context(), targetID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	actor := actorFrom(c)
	if decision := access.CanDeactivate(actor, targetID, target.Role); !decision.Allowed {
		apperrors.HandleError(c, apperrors.NewForbidden(decision.Reason, "not permitted to deactivate this user"))
		return
	}

	inactive := false
	if _, err := h.d.Identity.UpdateUser(c.Request.Context(), targetID, models.UpdateUserRequest{Active: &inactive}, actor.ID); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=12"`
}

// resetUserPassword implements POST /admin/users/{id}/password: an
// admin-initiated forced reset, distinct from the self-service and
// forced-change flows in me.go.
func (h *handlers) resetUserPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	targetID := c.Param("id")
	target, err := h.d.Identity.GetUser(c.Request.Context(), targetID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	actor := actorFrom(c)
	if decision := access.Check(actor, access.ActionResetUserPassword, targetID, target.Role); !decision.Allowed {
		apperrors.HandleError(c, apperrors.NewForbidden(decision.Reason, "not permitted to reset this user's password"))
		return
	}

	if err := h.d.Identity.AdminResetPassword(c.Request.Context(), targetID, req.NewPassword, actor.ID); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}
