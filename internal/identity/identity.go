// Package identity implements password lifecycle, login outcome, and
// session lifecycle (spec.md 4.5): the IdentityService component. It is
// the only package that hashes or verifies passwords, generates session
// tokens, or enforces the concurrent-session cap.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
	"unicode"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/logger"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/store"
	"github.com/bpsong/mailroom/internal/writequeue"
)

// Tunables, defaulted per spec.md 4.5; overridable via Config for
// operators who need a stricter or looser policy.
type Policy struct {
	Argon2TimeCost      uint32
	Argon2MemoryCostKiB uint32
	Argon2Parallelism   uint8

	PasswordMinLength int
	PasswordHistory   int // N_hist

	MaxFailedLogins int           // K_max
	LockoutDuration time.Duration // D_lock

	SessionTTL        time.Duration // T_session
	RenewalWindow     time.Duration // T_renew
	MaxConcurrentSess int           // N_sess

	// UnknownUserDelay is the fixed sleep applied on an unknown-username
	// login attempt so timing does not reveal whether the account exists.
	UnknownUserDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Argon2TimeCost:      3,
		Argon2MemoryCostKiB: 19456,
		Argon2Parallelism:   1,

		PasswordMinLength: 12,
		PasswordHistory:   3,

		MaxFailedLogins: 5,
		LockoutDuration: 30 * time.Minute,

		SessionTTL:        30 * time.Minute,
		RenewalWindow:     60 * time.Second,
		MaxConcurrentSess: 3,

		UnknownUserDelay: 250 * time.Millisecond,
	}
}

func (p Policy) argonParams() *argon2id.Params {
	return &argon2id.Params{
		Memory:      p.Argon2MemoryCostKiB,
		Iterations:  p.Argon2TimeCost,
		Parallelism: p.Argon2Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// auditRecorder is the narrow slice of *audit.Sink this package needs.
type auditRecorder interface {
	Record(ctx context.Context, kind models.EventKind, userID, username, clientIP, detail string)
}

// Service is the IdentityService component.
type Service struct {
	st     *store.Store
	queue  *writequeue.Queue
	audit  auditRecorder
	policy Policy
}

func New(st *store.Store, queue *writequeue.Queue, audit auditRecorder, policy Policy) *Service {
	return &Service{st: st, queue: queue, audit: audit, policy: policy}
}

// LoginResult carries the outcome of a successful login.
type LoginResult struct {
	User         models.User
	SessionToken string
	Session      models.Session
}

// Login implements the four-step algorithm of spec.md 4.5 exactly,
// including the constant-time delay used to resist username enumeration.
func (s *Service) Login(ctx context.Context, username, password, clientIP, userAgent string) (*LoginResult, error) {
	user, err := s.findUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.audit.Record(ctx, models.EventLoginFailed, "", username, clientIP, "unknown_user")
			time.Sleep(s.policy.UnknownUserDelay)
			return nil, genericLoginFailure()
		}
		return nil, apperrors.NewInternal(err)
	}

	now := time.Now().UTC()
	if user.IsLocked(now) {
		s.audit.Record(ctx, models.EventLoginFailed, user.ID, username, clientIP, "locked")
		return nil, apperrors.New(apperrors.Locked, "account_locked", "account is temporarily locked, try again later")
	}

	match, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !match {
		if err := s.recordFailedLogin(ctx, &user, clientIP); err != nil {
			return nil, err
		}
		s.audit.Record(ctx, models.EventLoginFailed, user.ID, username, clientIP, "bad_password")
		return nil, genericLoginFailure()
	}

	if err := s.queue.Submit(ctx,
		`UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = datetime('now') WHERE id = ?`,
		user.ID,
	); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	sess, token, err := s.createSession(ctx, user.ID, clientIP, userAgent)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.EventLogin, user.ID, username, clientIP, "")
	return &LoginResult{User: user, SessionToken: token, Session: *sess}, nil
}

func genericLoginFailure() error {
	return apperrors.New(apperrors.Unauthenticated, "invalid_credentials", "invalid username or password")
}

// recordFailedLogin increments the counter and locks the account once
// K_max is reached.
func (s *Service) recordFailedLogin(ctx context.Context, user *models.User, clientIP string) error {
	newCount := user.FailedLoginCount + 1
	if newCount >= s.policy.MaxFailedLogins {
		lockedUntil := time.Now().UTC().Add(s.policy.LockoutDuration)
		if err := s.queue.Submit(ctx,
			`UPDATE users SET failed_login_count = ?, locked_until = ?, updated_at = datetime('now') WHERE id = ?`,
			newCount, lockedUntil, user.ID,
		); err != nil {
			return apperrors.NewInternal(err)
		}
		s.audit.Record(ctx, models.EventAccountLocked, user.ID, user.Username, clientIP, "")
		return nil
	}
	if err := s.queue.Submit(ctx,
		`UPDATE users SET failed_login_count = ?, updated_at = datetime('now') WHERE id = ?`,
		newCount, user.ID,
	); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// createSession generates a high-entropy token, enforces the
// concurrent-session cap by evicting the oldest sessions first, then
// inserts the new session.
func (s *Service) createSession(ctx context.Context, userID, clientIP, userAgent string) (*models.Session, string, error) {
	token, tokenHash, err := generateSessionToken()
	if err != nil {
		return nil, "", apperrors.NewInternal(err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.policy.SessionTTL)

	activeIDs, err := s.activeSessionIDsOldestFirst(ctx, userID, now)
	if err != nil {
		return nil, "", apperrors.NewInternal(err)
	}

	var stmts []store.Statement
	if len(activeIDs) >= s.policy.MaxConcurrentSess {
		evict := len(activeIDs) - s.policy.MaxConcurrentSess + 1
		for i := 0; i < evict; i++ {
			stmts = append(stmts, store.Statement{SQL: "DELETE FROM sessions WHERE id = ?", Args: []any{activeIDs[i]}})
		}
	}

	id := uuid.NewString()
	var clientIPArg, userAgentArg any
	if clientIP != "" {
		clientIPArg = clientIP
	}
	if userAgent != "" {
		userAgentArg = userAgent
	}
	stmts = append(stmts, store.Statement{
		SQL: `INSERT INTO sessions (id, user_id, token_hash, expires_at, last_activity, client_ip, user_agent, created_at)
		      VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		Args: []any{id, userID, tokenHash, expiresAt, now, clientIPArg, userAgentArg},
	})

	if err := s.queue.SubmitBatch(ctx, stmts); err != nil {
		return nil, "", apperrors.NewInternal(err)
	}

	return &models.Session{
		ID:           id,
		UserID:       userID,
		TokenHash:    tokenHash,
		ExpiresAt:    expiresAt,
		LastActivity: now,
	}, token, nil
}

func (s *Service) activeSessionIDsOldestFirst(ctx context.Context, userID string, now time.Time) ([]string, error) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx,
		`SELECT id FROM sessions WHERE user_id = ? AND expires_at > ? ORDER BY created_at ASC`,
		userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ValidateSession looks up the session by the raw token, checks
// expiry and owning-user activity, and idempotently renews it if within
// the renewal window.
func (s *Service) ValidateSession(ctx context.Context, token string) (*models.User, *models.Session, error) {
	tokenHash := hashToken(token)

	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return nil, nil, apperrors.NewInternal(err)
	}
	defer h.Close()

	var sess models.Session
	var clientIP, userAgent sql.NullString
	err = h.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, last_activity, client_ip, user_agent, created_at
		 FROM sessions WHERE token_hash = ?`, tokenHash,
	).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.ExpiresAt, &sess.LastActivity, &clientIP, &userAgent, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperrors.NewUnauthenticated("no such session")
	}
	if err != nil {
		return nil, nil, apperrors.NewInternal(err)
	}

	now := time.Now().UTC()
	if sess.IsExpired(now) {
		return nil, nil, apperrors.NewUnauthenticated("session expired")
	}

	user, err := s.findUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperrors.NewUnauthenticated("user not found")
		}
		return nil, nil, apperrors.NewInternal(err)
	}
	if !user.Active {
		return nil, nil, apperrors.NewUnauthenticated("account deactivated")
	}

	if sess.ExpiresAt.Sub(now) < s.policy.SessionTTL-s.policy.RenewalWindow {
		newExpiry := now.Add(s.policy.SessionTTL)
		if err := s.queue.Submit(ctx,
			`UPDATE sessions SET expires_at = ?, last_activity = ? WHERE id = ?`,
			newExpiry, now, sess.ID,
		); err != nil {
			logger.Identity().Warn().Err(err).Msg("session renewal write failed")
		} else {
			sess.ExpiresAt = newExpiry
			sess.LastActivity = now
		}
	}

	return &user, &sess, nil
}

// Logout deletes only the presented session (spec.md 4.5 distinguishes
// single-session logout from deactivation's all-sessions termination).
func (s *Service) Logout(ctx context.Context, token, username, clientIP string) error {
	tokenHash := hashToken(token)
	if err := s.queue.Submit(ctx, "DELETE FROM sessions WHERE token_hash = ?", tokenHash); err != nil {
		return apperrors.NewInternal(err)
	}
	s.audit.Record(ctx, models.EventLogout, "", username, clientIP, "")
	return nil
}

// TerminateAllSessions deletes every session for userID (deactivation or
// an admin-forced password reset).
func (s *Service) TerminateAllSessions(ctx context.Context, userID string) error {
	if err := s.queue.Submit(ctx, "DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// ListSessions returns a user's active sessions, for the "my sessions"
// self-service view.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx,
		`SELECT id, user_id, expires_at, last_activity, client_ip, user_agent, created_at
		 FROM sessions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var out []models.Session
	for rows.Next() {
		var sess models.Session
		var clientIP, userAgent sql.NullString
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.LastActivity, &clientIP, &userAgent, &sess.CreatedAt); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if clientIP.Valid {
			v := clientIP.String
			sess.ClientIP = &v
		}
		if userAgent.Valid {
			v := userAgent.String
			sess.UserAgent = &v
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// TerminateSession deletes a single session by ID, verifying ownership.
func (s *Service) TerminateSession(ctx context.Context, userID, sessionID string) error {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	var owner string
	err = h.QueryRowContext(ctx, "SELECT user_id FROM sessions WHERE id = ?", sessionID).Scan(&owner)
	h.Close()
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound("session")
	}
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if owner != userID {
		return apperrors.NewForbidden("not_owner", "cannot terminate another user's session")
	}
	if err := s.queue.Submit(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

func (s *Service) findUserByUsername(ctx context.Context, username string) (models.User, error) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return models.User{}, err
	}
	defer h.Close()
	return scanUser(h.QueryRowContext(ctx,
		`SELECT id, username, password_hash, full_name, role, active, must_change_password,
		        failed_login_count, locked_until, created_at, updated_at
		 FROM users WHERE username = ?`, username))
}

func (s *Service) findUserByID(ctx context.Context, id string) (models.User, error) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return models.User{}, err
	}
	defer h.Close()
	return scanUser(h.QueryRowContext(ctx,
		`SELECT id, username, password_hash, full_name, role, active, must_change_password,
		        failed_login_count, locked_until, created_at, updated_at
		 FROM users WHERE id = ?`, id))
}

func scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	var lockedUntil sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName, &u.Role, &u.Active, &u.MustChangePassword,
		&u.FailedLoginCount, &lockedUntil, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	return u, nil
}

// ValidatePasswordStrength enforces length and character-class
// requirements (spec.md 4.5).
func (s *Service) ValidatePasswordStrength(password string) error {
	if len(password) < s.policy.PasswordMinLength {
		return apperrors.NewValidation("too_short", fmt.Sprintf("password must be at least %d characters", s.policy.PasswordMinLength))
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return apperrors.NewValidation("too_weak", "password must include uppercase, lowercase, digit, and symbol characters")
	}
	return nil
}

// ChangePassword hashes the new password, checks it against history,
// writes the new digest plus the rotated history, and clears
// must_change_password.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string, forced bool) error {
	if err := s.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}

	history, err := s.passwordHistory(ctx, userID)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	for _, old := range history {
		match, err := argon2id.ComparePasswordAndHash(newPassword, old)
		if err == nil && match {
			return apperrors.NewValidation("password_reused", "password must not match a recently used password")
		}
	}

	newHash, err := argon2id.CreateHash(newPassword, s.policy.argonParams())
	if err != nil {
		return apperrors.NewInternal(err)
	}

	stmts := []store.Statement{
		{SQL: `UPDATE users SET password_hash = ?, must_change_password = 0, updated_at = datetime('now') WHERE id = ?`,
			Args: []any{newHash, userID}},
		{SQL: `INSERT INTO password_history (id, user_id, password_hash, created_at) VALUES (?, ?, ?, datetime('now'))`,
			Args: []any{uuid.NewString(), userID, newHash}},
	}
	if evictID, ok := s.oldestHistoryIDIfOverLimit(ctx, userID); ok {
		stmts = append(stmts, store.Statement{SQL: "DELETE FROM password_history WHERE id = ?", Args: []any{evictID}})
	}
	if err := s.queue.SubmitBatch(ctx, stmts); err != nil {
		return apperrors.NewInternal(err)
	}

	kind := models.EventPasswordChanged
	if forced {
		kind = models.EventPasswordReset
	}
	s.audit.Record(ctx, kind, userID, "", "", "")
	return nil
}

func (s *Service) passwordHistory(ctx context.Context, userID string) ([]string, error) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	rows, err := h.QueryContext(ctx,
		"SELECT password_hash FROM password_history WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, s.policy.PasswordHistory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		out = append(out, hash)
	}
	return out, rows.Err()
}

func (s *Service) oldestHistoryIDIfOverLimit(ctx context.Context, userID string) (string, bool) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return "", false
	}
	defer h.Close()

	var count int
	if err := h.QueryRowContext(ctx, "SELECT COUNT(*) FROM password_history WHERE user_id = ?", userID).Scan(&count); err != nil {
		return "", false
	}
	if count < s.policy.PasswordHistory {
		return "", false
	}
	var id string
	err = h.QueryRowContext(ctx,
		"SELECT id FROM password_history WHERE user_id = ? ORDER BY created_at ASC LIMIT 1", userID,
	).Scan(&id)
	if err != nil {
		return "", false
	}
	return id, true
}

// HashInitialPassword is used by user-creation flows (admin creating an
// operator/admin account) to produce the stored digest.
func (s *Service) HashInitialPassword(password string) (string, error) {
	if err := s.ValidatePasswordStrength(password); err != nil {
		return "", err
	}
	return argon2id.CreateHash(password, s.policy.argonParams())
}

func generateSessionToken() (plainToken, tokenHash string, err error) {
	buf := make([]byte, 32) // 256 bits
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}
	plainToken = base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf)
	return plainToken, hashToken(plainToken), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ConstantTimeEqual reports whether a and b are equal, comparing them in
// constant time as anything comparing secrets does. No package in this
// module calls it; the CSRF middleware compares with crypto/subtle
// directly.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
