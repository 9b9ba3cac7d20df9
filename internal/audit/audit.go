// Package audit records the append-only AuthEvent trail: logins,
// lockouts, password changes, package lifecycle transitions, recipient
// directory changes, and settings changes; no export event is recorded.
// Every write goes through internal/writequeue, never directly to
// internal/store.
package audit

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/bpsong/mailroom/internal/logger"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/store"
	"github.com/bpsong/mailroom/internal/writequeue"
)

// sensitiveFields are scrubbed from Detail before it is persisted.
// Mirrors the teacher's request-body redaction list, narrowed to the
// free-text detail strings AuditSink actually accepts.
var sensitiveFields = []string{"password", "token", "secret", "apikey", "api_key"}

// Sink is the AuditSink component: a thin, queue-backed recorder.
type Sink struct {
	queue *writequeue.Queue
}

func New(queue *writequeue.Queue) *Sink {
	return &Sink{queue: queue}
}

// Record appends one AuthEvent. userID/username/clientIP may be empty
// when not applicable (e.g. a login attempt against an unknown
// username has no userID). Record waits until the WriteQueue has applied
// the insert (or it fails, or ctx ends): a failure here is logged, never
// returned to callers that treat audit as best-effort.
func (s *Sink) Record(ctx context.Context, kind models.EventKind, userID, username, clientIP, detail string) {
	id := uuid.NewString()
	detail = redact(detail)

	var userIDArg, usernameArg, clientIPArg any
	if userID != "" {
		userIDArg = userID
	}
	if username != "" {
		usernameArg = username
	}
	if clientIP != "" {
		clientIPArg = clientIP
	}

	err := s.queue.Submit(ctx,
		`INSERT INTO auth_events (id, kind, user_id, username, client_ip, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))`,
		id, string(kind), userIDArg, usernameArg, clientIPArg, detail,
	)
	if err != nil {
		logger.Audit().Error().Err(err).Str("kind", string(kind)).Msg("failed to record audit event")
	}
}

func redact(detail string) string {
	lower := strings.ToLower(detail)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return "[REDACTED]"
		}
	}
	return detail
}

// List returns recent auth events for the audit log view (super_admin
// only), newest first, bounded by limit.
func (s *Sink) List(ctx context.Context, st *store.Store, limit int) ([]models.AuthEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	h, err := st.OpenRead(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	rows, err := h.QueryContext(ctx,
		`SELECT id, kind, user_id, username, client_ip, detail, created_at
		 FROM auth_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AuthEvent
	for rows.Next() {
		var e models.AuthEvent
		var userID, username, clientIP *string
		if err := rows.Scan(&e.ID, &e.Kind, &userID, &username, &clientIP, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = userID
		e.Username = username
		e.ClientIP = clientIP
		events = append(events, e)
	}
	return events, rows.Err()
}
