package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/middleware"
	"github.com/bpsong/mailroom/internal/models"
)

// roleFloor names the minimum role a route group requires; it is checked
// after requireAuth, which already guarantees a bound user exists.
type roleFloor int

const (
	requireAdmin roleFloor = iota
	requireSuperAdmin
)

// requireAuth rejects a request with no validated session. It must run
// after middleware.AuthenticationBinding, which attaches the user to the
// context and never aborts a request for a missing or invalid session
// (spec.md 4.7); it aborts only to redirect a user who must change their
// password.
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := middleware.CurrentUser(c); !ok {
			apperrors.HandleError(c, apperrors.NewUnauthenticated("authentication required"))
			return
		}
		c.Next()
	}
}

// requireRole rejects a request whose bound user does not meet floor.
func requireRole(floor roleFloor) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.CurrentUser(c)
		if user == nil {
			apperrors.HandleError(c, apperrors.NewUnauthenticated("authentication required"))
			return
		}
		switch floor {
		case requireSuperAdmin:
			if user.Role != models.RoleSuperAdmin {
				apperrors.HandleError(c, apperrors.NewForbidden("insufficient_role", "super_admin role required"))
				return
			}
		default: // requireAdmin
			if user.Role.Rank() < models.RoleAdmin.Rank() {
				apperrors.HandleError(c, apperrors.NewForbidden("insufficient_role", "admin role required"))
				return
			}
		}
		c.Next()
	}
}

// writeJSON is the one place a 2xx JSON body is written, so every
// success response goes through the same helper as HandleError does for
// failures.
func writeJSON(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func clientIP(c *gin.Context) string { return c.ClientIP() }

func userAgent(c *gin.Context) string { return c.Request.UserAgent() }

// htmlPage renders the placeholder shell for a page route. Real template
// rendering (layout, partials, HTMX fragments) is peripheral plumbing
// outside this core's scope (spec.md 1); handlers that back an HTML page
// still run their full authorization and data-loading path and hand the
// resulting view-model to this stub so a template engine can be dropped
// in without touching the handler.
func htmlPage(c *gin.Context, title string, viewModel any) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	_, _ = c.Writer.WriteString("<!-- " + title + " rendered by an external template layer over this view-model -->")
	c.Set("view_model", viewModel)
}
