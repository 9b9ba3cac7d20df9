package packages

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/sanitize"
	"github.com/bpsong/mailroom/internal/store"
)

// CreateRecipient inserts a new directory entry. Department is required
// and trimmed; email/employee_id uniqueness is enforced at storage via
// UNIQUE constraints and surfaced here as a Conflict.
func (c *Core) CreateRecipient(ctx context.Context, req models.CreateRecipientRequest) (*models.Recipient, error) {
	dept := strings.TrimSpace(req.Department)
	if dept == "" {
		return nil, apperrors.NewValidation("department_required", "department is required")
	}
	name := sanitize.Text(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, apperrors.NewValidation("name_required", "name is required")
	}

	id := uuid.NewString()
	err := c.queue.Submit(ctx,
		`INSERT INTO recipients (id, employee_id, name, email, department, phone, location, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, datetime('now'), datetime('now'))`,
		id, req.EmployeeID, name, req.Email, dept, req.Phone, req.Location,
	)
	if err != nil {
		return nil, mapWriteConflict(err, "employee_id or email already in use")
	}

	c.audit.Record(ctx, models.EventRecipientCreated, "", "", "", "recipient="+id)
	return c.getRecipient(ctx, id)
}

// UpdateRecipient patches the mutable recipient fields. EmployeeID
// cannot be changed.
func (c *Core) UpdateRecipient(ctx context.Context, id string, req models.UpdateRecipientRequest) (*models.Recipient, error) {
	existing, err := c.getRecipient(ctx, id)
	if err != nil {
		return nil, err
	}

	name := existing.Name
	if req.Name != nil {
		name = sanitize.Text(strings.TrimSpace(*req.Name))
	}
	email := existing.Email
	if req.Email != nil {
		email = *req.Email
	}
	dept := existing.Department
	if req.Department != nil {
		dept = strings.TrimSpace(*req.Department)
		if dept == "" {
			return nil, apperrors.NewValidation("department_required", "department is required")
		}
	}
	phone := existing.Phone
	if req.Phone != nil {
		phone = req.Phone
	}
	location := existing.Location
	if req.Location != nil {
		location = req.Location
	}

	err = c.queue.Submit(ctx,
		`UPDATE recipients SET name = ?, email = ?, department = ?, phone = ?, location = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		name, email, dept, phone, location, id,
	)
	if err != nil {
		return nil, mapWriteConflict(err, "email already in use")
	}

	c.audit.Record(ctx, models.EventRecipientUpdated, "", "", "", "recipient="+id)
	return c.getRecipient(ctx, id)
}

// DeactivateRecipient sets active=false, rejecting the request if any
// non-terminal package still references this recipient.
func (c *Core) DeactivateRecipient(ctx context.Context, id string) error {
	h, err := c.st.OpenRead(ctx)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	var openCount int
	err = h.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM packages WHERE recipient_id = ? AND status IN (?, ?, ?)`,
		id, models.StatusRegistered, models.StatusAwaitingPickup, models.StatusOutForDelivery,
	).Scan(&openCount)
	h.Close()
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if openCount > 0 {
		return apperrors.NewValidation("has_open_packages", "recipient has packages that are not yet delivered or returned")
	}

	if err := c.queue.Submit(ctx, "UPDATE recipients SET active = 0, updated_at = datetime('now') WHERE id = ?", id); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

func (c *Core) getRecipient(ctx context.Context, id string) (*models.Recipient, error) {
	h, err := c.st.OpenRead(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer h.Close()
	r, err := scanRecipient(h.QueryRowContext(ctx,
		`SELECT id, employee_id, name, email, department, phone, location, active, created_at, updated_at
		 FROM recipients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("recipient")
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &r, nil
}

func scanRecipient(row *sql.Row) (models.Recipient, error) {
	var r models.Recipient
	var dept sql.NullString
	err := row.Scan(&r.ID, &r.EmployeeID, &r.Name, &r.Email, &dept, &r.Phone, &r.Location, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Recipient{}, err
	}
	if dept.Valid {
		r.Department = dept.String
	} else {
		r.Department = models.UnassignedDepartment
	}
	return r, nil
}

// ImportRecipients bulk-loads rows, matching by employee_id: present
// updates, absent inserts. Chunked at importChunkSize rows per
// transaction so a single atomic write of the whole file never blocks
// WriteQueue for an unbounded duration (spec.md 4.8.2's "preferred
// whole-file atomicity, else chunked" resolved toward chunking — see
// design notes).
const importChunkSize = 500

func (c *Core) ImportRecipients(ctx context.Context, rows []models.RecipientImportRow) (*models.ImportReport, error) {
	report := &models.ImportReport{}

	for start := 0; start < len(rows); start += importChunkSize {
		end := start + importChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		report.Chunks++

		var stmts []store.Statement
		for i, row := range chunk {
			rowNum := start + i + 1
			dept := strings.TrimSpace(row.Department)
			if row.EmployeeID == "" || row.Name == "" || row.Email == "" || dept == "" {
				report.Skipped++
				report.Errors = append(report.Errors, models.ImportRowError{Row: rowNum, Reason: "missing required field"})
				continue
			}
			if !strings.Contains(row.Email, "@") {
				report.Skipped++
				report.Errors = append(report.Errors, models.ImportRowError{Row: rowNum, Reason: "invalid email"})
				continue
			}

			exists, err := c.recipientExistsByEmployeeID(ctx, row.EmployeeID)
			if err != nil {
				report.Skipped++
				report.Errors = append(report.Errors, models.ImportRowError{Row: rowNum, Reason: "lookup failed"})
				continue
			}
			name := sanitize.Text(row.Name)
			if exists {
				stmts = append(stmts, store.Statement{
					SQL: `UPDATE recipients SET name = ?, email = ?, department = ?, phone = ?, location = ?, updated_at = datetime('now')
					      WHERE employee_id = ?`,
					Args: []any{name, row.Email, dept, nullableString(row.Phone), nullableString(row.Location), row.EmployeeID},
				})
				report.Updated++
			} else {
				stmts = append(stmts, store.Statement{
					SQL: `INSERT INTO recipients (id, employee_id, name, email, department, phone, location, active, created_at, updated_at)
					      VALUES (?, ?, ?, ?, ?, ?, ?, 1, datetime('now'), datetime('now'))`,
					Args: []any{uuid.NewString(), row.EmployeeID, name, row.Email, dept, nullableString(row.Phone), nullableString(row.Location)},
				})
				report.Inserted++
			}
		}

		if len(stmts) > 0 {
			if err := c.queue.SubmitBatch(ctx, stmts); err != nil {
				return report, apperrors.NewInternal(err)
			}
		}
	}

	c.audit.Record(ctx, models.EventRecipientImported, "", "", "", "")
	return report, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (c *Core) recipientExistsByEmployeeID(ctx context.Context, employeeID string) (bool, error) {
	h, err := c.st.OpenRead(ctx)
	if err != nil {
		return false, err
	}
	defer h.Close()
	var count int
	err = h.QueryRowContext(ctx, "SELECT COUNT(*) FROM recipients WHERE employee_id = ?", employeeID).Scan(&count)
	return count > 0, err
}

func mapWriteConflict(err error, message string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return apperrors.NewConflict("already_exists", message)
	}
	return apperrors.NewInternal(err)
}
