package packages

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/models"
)

// Search implements the read projection of spec.md 4.8.3: free-text
// match against tracking_no/recipient name, optional status/department/
// date-range filters, ordered by created_at descending with identifier
// tie-break, page size bounded by MaxSearchLimit.
func (c *Core) Search(ctx context.Context, q models.SearchQuery) ([]models.SearchResult, error) {
	limit := q.Limit
	if limit <= 0 || limit > models.MaxSearchLimit {
		limit = models.MaxSearchLimit
	}
	page := q.Page
	if page < 0 {
		page = 0
	}

	var where []string
	var args []any

	if text := strings.TrimSpace(q.Text); text != "" {
		where = append(where, "(p.tracking_no LIKE ? OR r.name LIKE ?)")
		pattern := "%" + text + "%"
		args = append(args, pattern, pattern)
	}
	if q.Status != nil {
		where = append(where, "p.status = ?")
		args = append(args, string(*q.Status))
	}
	if q.Department != nil {
		where = append(where, "r.department = ?")
		args = append(args, *q.Department)
	}
	if q.From != nil {
		where = append(where, "p.created_at >= ?")
		args = append(args, *q.From)
	}
	if q.To != nil {
		where = append(where, "p.created_at <= ?")
		args = append(args, *q.To)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.tracking_no, p.carrier, p.recipient_id, p.status, p.notes, p.created_by, p.created_at, p.updated_at,
		       r.name, r.department
		FROM packages p
		JOIN recipients r ON r.id = p.recipient_id
		%s
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ? OFFSET ?`, whereClause)
	args = append(args, limit, page*limit)

	h, err := c.st.OpenRead(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var sr models.SearchResult
		var dept sql.NullString
		if err := rows.Scan(&sr.Package.ID, &sr.Package.TrackingNo, &sr.Package.Carrier, &sr.Package.RecipientID,
			&sr.Package.Status, &sr.Package.Notes, &sr.Package.CreatedBy, &sr.Package.CreatedAt, &sr.Package.UpdatedAt,
			&sr.RecipientName, &dept); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if dept.Valid {
			sr.RecipientDept = dept.String
		} else {
			sr.RecipientDept = models.UnassignedDepartment
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// SearchRecipients is the read-only type-ahead behind GET
// /recipients/search: active recipients matching a free-text fragment
// of name/employee_id/email, optionally narrowed to one department.
func (c *Core) SearchRecipients(ctx context.Context, text string, department *string, limit int) ([]models.Recipient, error) {
	if limit <= 0 || limit > models.MaxSearchLimit {
		limit = models.MaxSearchLimit
	}

	where := []string{"active = 1"}
	var args []any
	if t := strings.TrimSpace(text); t != "" {
		where = append(where, "(name LIKE ? OR employee_id LIKE ? OR email LIKE ?)")
		pattern := "%" + t + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if department != nil && *department != "" {
		where = append(where, "department = ?")
		args = append(args, *department)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, employee_id, name, email, department, phone, location, active, created_at, updated_at
		FROM recipients
		WHERE %s
		ORDER BY name ASC
		LIMIT ?`, strings.Join(where, " AND "))

	h, err := c.st.OpenRead(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		var dept sql.NullString
		if err := rows.Scan(&r.ID, &r.EmployeeID, &r.Name, &r.Email, &dept, &r.Phone, &r.Location, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if dept.Valid {
			r.Department = dept.String
		} else {
			r.Department = models.UnassignedDepartment
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of packages in each lifecycle status,
// for the admin dashboard summary. Statuses with no packages are simply
// absent from the map.
func (c *Core) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	h, err := c.st.OpenRead(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx, `SELECT status, COUNT(*) FROM packages GROUP BY status`)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status models.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
