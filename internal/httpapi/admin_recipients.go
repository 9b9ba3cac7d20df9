package httpapi

import (
	"bufio"
	"encoding/csv"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/middleware"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/validator"
)

func (h *handlers) listRecipientsAdminPage(c *gin.Context) {
	recipients, err := h.d.Packages.SearchRecipients(c.Request.Context(), "", nil, models.MaxSearchLimit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	htmlPage(c, "admin-recipients", gin.H{"recipients": recipients})
}

func (h *handlers) newRecipientPage(c *gin.Context) {
	htmlPage(c, "admin-recipient-new", gin.H{"csrf_token": middleware.GetCSRFToken(c)})
}

func (h *handlers) createRecipient(c *gin.Context) {
	var req models.CreateRecipientRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	recipient, err := h.d.Packages.CreateRecipient(c.Request.Context(), req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, recipient)
}

func (h *handlers) editRecipientPage(c *gin.Context) {
	recipients, err := h.d.Packages.SearchRecipients(c.Request.Context(), "", nil, models.MaxSearchLimit)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	id := c.Param("id")
	for _, r := range recipients {
		if r.ID == id {
			htmlPage(c, "admin-recipient-edit", gin.H{"recipient": r, "csrf_token": middleware.GetCSRFToken(c)})
			return
		}
	}
	apperrors.HandleError(c, apperrors.NewNotFound("recipient"))
}

func (h *handlers) updateRecipient(c *gin.Context) {
	var req models.UpdateRecipientRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}
	recipient, err := h.d.Packages.UpdateRecipient(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, recipient)
}

func (h *handlers) deactivateRecipient(c *gin.Context) {
	if err := h.d.Packages.DeactivateRecipient(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

func (h *handlers) importRecipientsPage(c *gin.Context) {
	htmlPage(c, "admin-recipients-import", gin.H{"csrf_token": middleware.GetCSRFToken(c)})
}

// validateRecipientImport parses the uploaded CSV and reports what would
// happen without writing anything, per spec.md 4.8.2's validate/confirm
// two-step import.
func (h *handlers) validateRecipientImport(c *gin.Context) {
	rows, err := parseRecipientImportCSV(c)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"row_count": len(rows), "preview": firstN(rows, 20)})
}

func (h *handlers) confirmRecipientImport(c *gin.Context) {
	rows, err := parseRecipientImportCSV(c)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	report, err := h.d.Packages.ImportRecipients(c.Request.Context(), rows)
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, report)
}

// parseRecipientImportCSV reads the "file" multipart field: header row
// employee_id,name,email,department,phone,location (phone/location
// optional). CSV parsing mechanics are peripheral plumbing (spec.md 1);
// this is deliberately minimal rather than a full dialect-aware reader.
func parseRecipientImportCSV(c *gin.Context) ([]models.RecipientImportRow, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, apperrors.NewValidation("file_required", "a CSV file is required")
	}
	f, err := file.Open()
	if err != nil {
		return nil, apperrors.NewValidation("invalid_upload", "could not read uploaded file")
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReader(f))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewValidation("empty_file", "CSV file has no header row")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var rows []models.RecipientImportRow
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		rows = append(rows, models.RecipientImportRow{
			EmployeeID: field(record, col, "employee_id"),
			Name:       field(record, col, "name"),
			Email:      field(record, col, "email"),
			Department: field(record, col, "department"),
			Phone:      field(record, col, "phone"),
			Location:   field(record, col, "location"),
		})
	}
	return rows, nil
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func firstN(rows []models.RecipientImportRow, n int) []models.RecipientImportRow {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}
