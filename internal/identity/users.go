package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/models"
)

// CreateUser provisions a new account with an initial password, for the
// admin "new user" form. The caller (internal/access) has already
// confirmed the actor may create an account with this role.
func (s *Service) CreateUser(ctx context.Context, req models.CreateUserRequest, actorID string) (*models.User, error) {
	exists, err := s.usernameExists(ctx, req.Username)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if exists {
		return nil, apperrors.NewConflict("username_taken", "username is already in use")
	}

	hash, err := s.HashInitialPassword(req.Password)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := s.queue.Submit(ctx,
		`INSERT INTO users (id, username, password_hash, full_name, role, active, must_change_password, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, 1, datetime('now'), datetime('now'))`,
		id, req.Username, hash, req.FullName, req.Role,
	); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	s.audit.Record(ctx, models.EventUserCreated, actorID, req.Username, "", "role="+string(req.Role))

	user, err := s.findUserByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &user, nil
}

// GetUser fetches a single account by ID, for the admin edit-user view.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.findUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("user")
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &user, nil
}

// ListUsers returns every account, oldest first, for the admin users list.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx,
		`SELECT id, username, password_hash, full_name, role, active, must_change_password,
		        failed_login_count, locked_until, created_at, updated_at
		 FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		var lockedUntil sql.NullTime
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Role, &u.Active, &u.MustChangePassword,
			&u.FailedLoginCount, &lockedUntil, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if lockedUntil.Valid {
			u.LockedUntil = &lockedUntil.Time
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateUser applies the non-nil fields of req to the account. Role
// changes and deactivation must already have been cleared against
// internal/access by the caller (CanChangeRole / CanDeactivate) — this
// method only persists the result and records the matching audit event.
func (s *Service) UpdateUser(ctx context.Context, id string, req models.UpdateUserRequest, actorID string) (*models.User, error) {
	existing, err := s.findUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("user")
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	fullName := existing.FullName
	if req.FullName != nil {
		fullName = *req.FullName
	}
	role := existing.Role
	if req.Role != nil {
		role = *req.Role
	}
	active := existing.Active
	if req.Active != nil {
		active = *req.Active
	}

	if err := s.queue.Submit(ctx,
		`UPDATE users SET full_name = ?, role = ?, active = ?, updated_at = datetime('now') WHERE id = ?`,
		fullName, role, active, id,
	); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	if req.Active != nil && !*req.Active && existing.Active {
		if err := s.TerminateAllSessions(ctx, id); err != nil {
			return nil, err
		}
		s.audit.Record(ctx, models.EventUserDeactivated, actorID, existing.Username, "", "")
	} else {
		s.audit.Record(ctx, models.EventUserUpdated, actorID, existing.Username, "", "")
	}

	updated, err := s.findUserByID(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &updated, nil
}

// AdminResetPassword forces a new password on userID's behalf, marking
// must_change_password so the owner is required to pick their own on next
// login. Unlike ChangePassword it does not require (or check) the old
// password — access control for who may call this is AccessPolicy's job.
func (s *Service) AdminResetPassword(ctx context.Context, userID, newPassword, actorID string) error {
	if err := s.ChangePassword(ctx, userID, newPassword, true); err != nil {
		return err
	}
	if err := s.queue.Submit(ctx,
		`UPDATE users SET must_change_password = 1 WHERE id = ?`, userID,
	); err != nil {
		return apperrors.NewInternal(err)
	}
	return s.TerminateAllSessions(ctx, userID)
}

func (s *Service) usernameExists(ctx context.Context, username string) (bool, error) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return false, err
	}
	defer h.Close()

	var count int
	if err := h.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
