// Package httpapi wires RequestPipeline's middleware chain to the
// handlers for every route in spec.md 6, translating between gin's
// request/response types and the identity/access/packages/settings
// service layer. It never touches internal/store directly except for
// the health check.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bpsong/mailroom/internal/access"
	"github.com/bpsong/mailroom/internal/audit"
	"github.com/bpsong/mailroom/internal/config"
	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/identity"
	"github.com/bpsong/mailroom/internal/middleware"
	"github.com/bpsong/mailroom/internal/packages"
	"github.com/bpsong/mailroom/internal/settings"
	"github.com/bpsong/mailroom/internal/store"
	"github.com/bpsong/mailroom/internal/writequeue"
)

// Deps is every collaborator the HTTP layer needs. It is assembled once
// in cmd/server and never mutated.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Queue     *writequeue.Queue
	Identity  *identity.Service
	Audit     *audit.Sink
	Packages  *packages.Core
	Settings  *settings.Store
	StartedAt time.Time
}

// NewRouter builds the gin engine: request correlation and recovery,
// method/deadline/size guards, then RequestPipeline's fixed middleware
// order (spec.md 4.7 — AuthenticationBinding, CSRF, RateLimit,
// SecurityHeaders), response compression, and finally every route
// group.
func NewRouter(d Deps) *gin.Engine {
	production := d.Config.IsProduction()

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger())
	r.Use(apperrors.Recovery())
	r.Use(middleware.AllowedHTTPMethods())
	r.Use(middleware.DisallowedHTTPMethods())
	r.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	r.Use(middleware.DefaultSizeLimiter())

	limiters := middleware.NewRateLimiters(d.Config.RateLimitLogin, d.Config.RateLimitAPI)

	r.Use(middleware.AuthenticationBinding(d.Identity))
	r.Use(middleware.CSRFProtection(production))
	r.Use(limiters.Middleware("/auth/login"))
	r.Use(middleware.SecurityHeaders(production))
	r.Use(middleware.Gzip(middleware.DefaultCompression))

	h := &handlers{d: d}

	r.GET("/", h.redirectToLogin)
	r.GET("/health", h.health)

	auth := r.Group("/auth")
	{
		auth.GET("/login", h.loginPage)
		auth.POST("/login", middleware.JSONSizeLimiter(), h.login)
		auth.POST("/logout", h.logout)
		auth.GET("/me", requireAuth(), h.me)
	}

	me := r.Group("/me", requireAuth())
	{
		me.GET("/password", h.changePasswordPage)
		me.POST("/password", h.changePassword)
		me.GET("/force-password-change", h.forcePasswordChangePage)
		me.POST("/force-password-change", h.forcePasswordChange)
		me.GET("/profile", h.profile)
		me.GET("/sessions", h.listSessions)
		me.POST("/sessions/:id/terminate", h.terminateSession)
	}

	r.GET("/dashboard", requireAuth(), h.dashboard)

	pkg := r.Group("/packages", requireAuth())
	{
		pkg.GET("", h.listPackagesPage)
		pkg.GET("/new", h.newPackagePage)
		pkg.POST("/new", middleware.JSONSizeLimiter(), h.registerPackage)
		pkg.GET("/:id", h.getPackage)
		pkg.POST("/:id/status", middleware.JSONSizeLimiter(), h.updatePackageStatus)
		pkg.POST("/:id/photo", middleware.FileUploadLimiter(d.Config.MaxUploadSize), h.uploadPackagePhoto)
		pkg.GET("/:id/qrcode/download", h.packageQRCodeDownload)
		pkg.GET("/:id/qrcode/print", h.packageQRCodePrint)
	}

	rec := r.Group("/recipients", requireAuth())
	{
		rec.GET("", h.listRecipientsPage)
		rec.GET("/search", h.searchRecipients)
	}

	admin := r.Group("/admin", requireAuth(), requireRole(requireAdmin))
	{
		admin.GET("/dashboard", h.adminDashboard)

		admin.GET("/users", h.listUsersPage)
		admin.GET("/users/new", h.newUserPage)
		admin.POST("/users/new", middleware.JSONSizeLimiter(), h.createUser)
		admin.GET("/users/:id/edit", h.editUserPage)
		admin.PUT("/users/:id/edit", middleware.JSONSizeLimiter(), h.updateUser)
		admin.POST("/users/:id/deactivate", h.deactivateUser)
		admin.POST("/users/:id/password", middleware.JSONSizeLimiter(), h.resetUserPassword)

		admin.GET("/recipients", h.listRecipientsAdminPage)
		admin.GET("/recipients/new", h.newRecipientPage)
		admin.POST("/recipients/new", middleware.JSONSizeLimiter(), h.createRecipient)
		admin.GET("/recipients/:id/edit", h.editRecipientPage)
		admin.POST("/recipients/:id/edit", middleware.JSONSizeLimiter(), h.updateRecipient)
		admin.PUT("/recipients/:id/edit", middleware.JSONSizeLimiter(), h.updateRecipient)
		admin.POST("/recipients/:id/deactivate", h.deactivateRecipient)
		admin.GET("/recipients/import", h.importRecipientsPage)
		admin.POST("/recipients/import/validate", middleware.FileUploadLimiter(d.Config.MaxUploadSize), h.validateRecipientImport)
		admin.POST("/recipients/import/confirm", middleware.FileUploadLimiter(d.Config.MaxUploadSize), h.confirmRecipientImport)

		admin.GET("/reports", h.reportsPage)
		admin.GET("/reports/preview", h.reportsPreview)
		admin.GET("/reports/export", h.reportsExport)
	}

	superAdmin := r.Group("/admin", requireAuth(), requireRole(requireSuperAdmin))
	{
		superAdmin.GET("/settings", h.settingsPage)
		superAdmin.POST("/settings/qr-base-url", middleware.JSONSizeLimiter(), h.setQRBaseURL)
		superAdmin.GET("/audit-logs", h.auditLogs)
	}

	return r
}

// handlers holds every dependency the route methods close over.
type handlers struct {
	d Deps
}

// actorFrom builds an access.Actor from the authenticated user bound to
// the request context. Callers must run behind requireAuth().
func actorFrom(c *gin.Context) access.Actor {
	user, _ := middleware.CurrentUser(c)
	if user == nil {
		return access.Actor{}
	}
	return access.Actor{ID: user.ID, Role: user.Role}
}
