package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/middleware"
)

type loginRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

func (h *handlers) redirectToLogin(c *gin.Context) {
	c.Redirect(http.StatusFound, "/auth/login")
}

func (h *handlers) loginPage(c *gin.Context) {
	htmlPage(c, "login", gin.H{"csrf_token": middleware.GetCSRFToken(c)})
}

// login implements spec.md 6's POST /auth/login contract: form-encoded
// credentials, session cookie set on success, the documented JSON body
// on both success and failure.
func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		apperrors.HandleError(c, apperrors.NewValidation("invalid_request", "username and password are required"))
		return
	}

	result, err := h.d.Identity.Login(c.Request.Context(), req.Username, req.Password, clientIP(c), userAgent(c))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	middleware.SetSessionCookie(c, middleware.SessionCookieName, result.SessionToken, h.d.Config.IsProduction())

	redirectURL := "/dashboard"
	if result.User.MustChangePassword {
		redirectURL = middleware.ForceChangePasswordPath
	}

	writeJSON(c, http.StatusOK, gin.H{
		"success":      true,
		"redirect_url": redirectURL,
		"user":         result.User.Summary(),
	})
}

// logout implements POST /auth/logout: clears the session cookie and
// redirects to the login page regardless of whether a session was
// actually bound (logging out twice is not an error).
func (h *handlers) logout(c *gin.Context) {
	token, err := c.Cookie(middleware.SessionCookieName)
	if err == nil && token != "" {
		user, _ := middleware.CurrentUser(c)
		username := ""
		if user != nil {
			username = user.Username
		}
		if err := h.d.Identity.Logout(c.Request.Context(), token, username, clientIP(c)); err != nil {
			apperrors.HandleError(c, err)
			return
		}
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", h.d.Config.IsProduction(), true)
	c.Redirect(http.StatusFound, "/auth/login")
}

// me implements GET /auth/me: the bound user's identity summary.
func (h *handlers) me(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	writeJSON(c, http.StatusOK, user.Summary())
}
