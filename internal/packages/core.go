// Package packages implements PackageCore (spec.md 4.8): the package
// lifecycle state machine, immutable event log, recipient invariants,
// attachment validation, and the read-side search projection. It is the
// only package that writes to the packages, package_events, and
// attachments tables.
package packages

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/sanitize"
	"github.com/bpsong/mailroom/internal/store"
	"github.com/bpsong/mailroom/internal/writequeue"
)

// auditRecorder is the narrow slice of *audit.Sink this package needs.
type auditRecorder interface {
	Record(ctx context.Context, kind models.EventKind, userID, username, clientIP, detail string)
}

// Core is the PackageCore component.
type Core struct {
	st    *store.Store
	queue *writequeue.Queue
	audit auditRecorder

	uploadRoot string
}

func New(st *store.Store, queue *writequeue.Queue, audit auditRecorder, uploadRoot string) *Core {
	return &Core{st: st, queue: queue, audit: audit, uploadRoot: uploadRoot}
}

// Register creates a new package in status=registered, optionally with
// one validated attachment, as a single atomic batch (spec.md 4.8).
func (c *Core) Register(ctx context.Context, req models.RegisterPackageRequest, actorID string, attachment *UploadedFile) (*models.Package, error) {
	recipient, err := c.getRecipient(ctx, req.RecipientID)
	if err != nil {
		return nil, err
	}
	if !recipient.Active {
		return nil, apperrors.NewValidation("recipient_inactive", "recipient is not active")
	}

	notes := sanitize.Text(req.Notes)
	if len(notes) > models.MaxNotesLength {
		notes = notes[:models.MaxNotesLength]
	}

	pkgID := uuid.NewString()
	eventID := uuid.NewString()

	stmts := []store.Statement{
		{SQL: `INSERT INTO packages (id, tracking_no, carrier, recipient_id, status, notes, created_by, created_at, updated_at)
		       VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
			Args: []any{pkgID, req.TrackingNo, req.Carrier, req.RecipientID, string(models.StatusRegistered), notes, actorID}},
		{SQL: `INSERT INTO package_events (id, package_id, old_status, new_status, actor, created_at)
		       VALUES (?, ?, NULL, ?, ?, datetime('now'))`,
			Args: []any{eventID, pkgID, string(models.StatusRegistered), actorID}},
		{SQL: `INSERT INTO auth_events (id, kind, user_id, detail, created_at) VALUES (?, ?, ?, ?, datetime('now'))`,
			Args: []any{uuid.NewString(), string(models.EventPackageCreated), actorID, "package=" + pkgID}},
	}

	var validated *validatedAttachment
	if attachment != nil {
		validated, err = c.validateAttachment(*attachment)
		if err != nil {
			return nil, err
		}
		attachID := uuid.NewString()
		stmts = append(stmts, store.Statement{
			SQL: `INSERT INTO attachments (id, package_id, original_filename, stored_path, mime_type, byte_size, uploaded_by, created_at)
			      VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
			Args: []any{attachID, pkgID, attachment.OriginalFilename, validated.storedPath, validated.mimeType, validated.size, actorID},
		})
	}

	if err := c.queue.SubmitBatch(ctx, stmts); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if validated != nil {
		if err := c.persistAttachmentBytes(validated.storedPath, attachment.Content); err != nil {
			// The database row is already committed; a filesystem write
			// failure here is logged by the caller's handler and does
			// not roll back the registration (package registration
			// itself must succeed — the photo is supplementary).
			return nil, apperrors.Wrap(apperrors.Internal, "attachment_write_failed", "package registered but attachment could not be stored", err)
		}
	}

	return c.Get(ctx, pkgID)
}

// UpdateStatus transitions a package, rejecting any edge not present in
// the allowed-transition graph (models.CanTransition).
func (c *Core) UpdateStatus(ctx context.Context, pkgID string, newStatus models.Status, notes, actorID string) (*models.Package, error) {
	pkg, err := c.Get(ctx, pkgID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(pkg.Status, newStatus) {
		return nil, apperrors.NewConflict("invalid_transition", "cannot move package from "+string(pkg.Status)+" to "+string(newStatus))
	}

	notes = sanitize.Text(notes)
	if len(notes) > models.MaxNotesLength {
		notes = notes[:models.MaxNotesLength]
	}
	oldStatus := pkg.Status

	stmts := []store.Statement{
		{SQL: `UPDATE packages SET status = ?, updated_at = datetime('now') WHERE id = ?`,
			Args: []any{string(newStatus), pkgID}},
		{SQL: `INSERT INTO package_events (id, package_id, old_status, new_status, notes, actor, created_at)
		       VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
			Args: []any{uuid.NewString(), pkgID, string(oldStatus), string(newStatus), notes, actorID}},
		{SQL: `INSERT INTO auth_events (id, kind, user_id, detail, created_at) VALUES (?, ?, ?, ?, datetime('now'))`,
			Args: []any{uuid.NewString(), string(models.EventPackageStatusChanged), actorID, "package=" + pkgID + " " + string(oldStatus) + "->" + string(newStatus)}},
	}

	if err := c.queue.SubmitBatch(ctx, stmts); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return c.Get(ctx, pkgID)
}

// Get fetches a single package by ID.
func (c *Core) Get(ctx context.Context, id string) (*models.Package, error) {
	h, err := c.st.OpenRead(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer h.Close()

	p, err := scanPackage(h.QueryRowContext(ctx,
		`SELECT id, tracking_no, carrier, recipient_id, status, notes, created_by, created_at, updated_at
		 FROM packages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("package")
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &p, nil
}

// Events returns a package's immutable timeline, ordered ascending with
// identifier tie-break (spec.md 3).
func (c *Core) Events(ctx context.Context, pkgID string) ([]models.PackageEvent, error) {
	h, err := c.st.OpenRead(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx,
		`SELECT id, package_id, old_status, new_status, notes, actor, created_at
		 FROM package_events WHERE package_id = ? ORDER BY created_at ASC, id ASC`, pkgID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var out []models.PackageEvent
	for rows.Next() {
		var e models.PackageEvent
		var oldStatus sql.NullString
		if err := rows.Scan(&e.ID, &e.PackageID, &oldStatus, &e.NewStatus, &e.Notes, &e.Actor, &e.CreatedAt); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if oldStatus.Valid {
			s := models.Status(oldStatus.String)
			e.OldStatus = &s
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanPackage(row *sql.Row) (models.Package, error) {
	var p models.Package
	err := row.Scan(&p.ID, &p.TrackingNo, &p.Carrier, &p.RecipientID, &p.Status, &p.Notes, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
