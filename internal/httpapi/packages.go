package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/middleware"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/packages"
	"github.com/bpsong/mailroom/internal/validator"
)

func (h *handlers) listPackagesPage(c *gin.Context) {
	results, err := h.d.Packages.Search(c.Request.Context(), models.SearchQuery{Limit: models.MaxSearchLimit})
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	htmlPage(c, "packages", gin.H{"packages": results})
}

func (h *handlers) newPackagePage(c *gin.Context) {
	htmlPage(c, "package-new", gin.H{"csrf_token": middleware.GetCSRFToken(c)})
}

// registerPackage implements POST /packages/new. The photo, if present,
// is read fully into memory here (bounded by MaxUploadSize) so
// PackageCore's attachment validation can sniff its content bytes.
func (h *handlers) registerPackage(c *gin.Context) {
	var req models.RegisterPackageRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	user, _ := middleware.CurrentUser(c)

	var attachment *packages.UploadedFile
	if file, err := c.FormFile("photo"); err == nil && file != nil {
		f, openErr := file.Open()
		if openErr != nil {
			apperrors.HandleError(c, apperrors.NewValidation("invalid_upload", "could not read uploaded photo"))
			return
		}
		content, readErr := io.ReadAll(io.LimitReader(f, h.d.Config.MaxUploadSize+1))
		f.Close()
		if readErr != nil {
			apperrors.HandleError(c, apperrors.NewInternal(readErr))
			return
		}
		attachment = &packages.UploadedFile{OriginalFilename: file.Filename, Content: content}
	}

	pkg, err := h.d.Packages.Register(c.Request.Context(), req, user.ID, attachment)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, pkg)
}

func (h *handlers) getPackage(c *gin.Context) {
	pkg, err := h.d.Packages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	events, err := h.d.Packages.Events(c.Request.Context(), pkg.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	htmlPage(c, "package-detail", gin.H{"package": pkg, "events": events})
}

func (h *handlers) updatePackageStatus(c *gin.Context) {
	var req models.UpdateStatusRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	user, _ := middleware.CurrentUser(c)

	pkg, err := h.d.Packages.UpdateStatus(c.Request.Context(), c.Param("id"), req.NewStatus, req.Notes, user.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, pkg)
}

// uploadPackagePhoto attaches a photo to an already-registered package
// (e.g. a delivery proof-of-photo added after the status transition
// itself was already recorded).
func (h *handlers) uploadPackagePhoto(c *gin.Context) {
	pkgID := c.Param("id")
	file, err := c.FormFile("photo")
	if err != nil {
		apperrors.HandleError(c, apperrors.NewValidation("photo_required", "a photo file is required"))
		return
	}
	f, err := file.Open()
	if err != nil {
		apperrors.HandleError(c, apperrors.NewValidation("invalid_upload", "could not read uploaded photo"))
		return
	}
	content, err := io.ReadAll(io.LimitReader(f, h.d.Config.MaxUploadSize+1))
	f.Close()
	if err != nil {
		apperrors.HandleError(c, apperrors.NewInternal(err))
		return
	}

	user, _ := middleware.CurrentUser(c)
	attachment, err := h.d.Packages.AttachPhoto(c.Request.Context(), pkgID,
		packages.UploadedFile{OriginalFilename: file.Filename, Content: content}, user.ID)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, attachment)
}

// packageQRCodeDownload and packageQRCodePrint back spec.md 6's QR-code
// routes. QR image rasterization is explicitly peripheral plumbing
// (spec.md 1); these handlers return the data a rasterizer needs
// (the package's tracking number and a settings-derived base URL) rather
// than image bytes.
func (h *handlers) packageQRCodeDownload(c *gin.Context) {
	h.qrCodePayload(c, "attachment")
}

func (h *handlers) packageQRCodePrint(c *gin.Context) {
	h.qrCodePayload(c, "inline")
}

func (h *handlers) qrCodePayload(c *gin.Context, disposition string) {
	pkg, err := h.d.Packages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	baseURL := h.d.Settings.GetBaseURL(c.Request.Context())
	writeJSON(c, http.StatusOK, gin.H{
		"tracking_no": pkg.TrackingNo,
		"url":         baseURL + "/packages/" + pkg.ID,
		"disposition": disposition,
	})
}
