// Package models defines the shared domain types of the mailroom core:
// users, sessions, recipients, packages, package events, attachments,
// audit events, and settings. These types are persisted by internal/store
// and passed between internal/identity, internal/access, and
// internal/packages; they carry both `json` tags (API responses) and
// `db` tags (column names), following the teacher's convention.
package models

import "time"

// Role is the three-level role hierarchy of the RBAC lattice:
// super_admin > admin > operator.
type Role string

const (
	RoleOperator    Role = "operator"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Rank returns the role's position in the lattice; higher outranks lower.
func (r Role) Rank() int {
	switch r {
	case RoleSuperAdmin:
		return 3
	case RoleAdmin:
		return 2
	case RoleOperator:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether r is strictly senior to other.
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

// User is an account in the mailroom system. PasswordHash is never
// serialized to JSON. PasswordHistory is not filled by internal/identity's
// user queries; the reuse check reads the last N_hist digests from the
// password_history table directly.
type User struct {
	ID                string     `json:"id" db:"id"`
	Username          string     `json:"username" db:"username"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	PasswordHistory   []string   `json:"-" db:"-"`
	FullName          string     `json:"full_name" db:"full_name"`
	Role              Role       `json:"role" db:"role"`
	Active            bool       `json:"active" db:"active"`
	MustChangePassword bool      `json:"must_change_password" db:"must_change_password"`
	FailedLoginCount  int        `json:"-" db:"failed_login_count"`
	LockedUntil       *time.Time `json:"-" db:"locked_until"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsLocked reports whether the account is currently under lockout.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Session is an authenticated browser session. Token is never logged or
// serialized; only its SHA-256 hash is persisted (see internal/identity).
type Session struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	TokenHash    string    `json:"-" db:"token_hash"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
	ClientIP     *string   `json:"client_ip,omitempty" db:"client_ip"`
	UserAgent    *string   `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// IsExpired reports whether the session is no longer valid at now. A
// session whose ExpiresAt equals now is treated as expired (spec.md 8).
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// IdentitySummary is the JSON shape returned by GET /auth/me and embedded
// in the login response.
type IdentitySummary struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	FullName           string `json:"full_name"`
	Role               Role   `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

func (u *User) Summary() IdentitySummary {
	return IdentitySummary{
		ID:                 u.ID,
		Username:           u.Username,
		FullName:           u.FullName,
		Role:               u.Role,
		MustChangePassword: u.MustChangePassword,
	}
}

// CreateUserRequest is the admin "create operator/admin" form payload.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=12"`
	FullName string `json:"full_name" validate:"required"`
	Role     Role   `json:"role" validate:"required,oneof=operator admin super_admin"`
}

// UpdateUserRequest is the admin "edit user" form payload; fields left
// nil/empty are not changed.
type UpdateUserRequest struct {
	FullName *string `json:"full_name"`
	Role     *Role   `json:"role" validate:"omitempty,oneof=operator admin super_admin"`
	Active   *bool   `json:"active"`
}
