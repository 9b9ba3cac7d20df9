// Package settings implements the small process-wide key/value store
// (spec.md 4.4): currently just the externally printed base URL, but
// shaped to hold any future operator-tunable string.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"

	apperrors "github.com/bpsong/mailroom/internal/errors"
	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/store"
	"github.com/bpsong/mailroom/internal/writequeue"
)

// Store is the SettingsStore component.
type Store struct {
	st    *store.Store
	queue *writequeue.Queue
	audit auditRecorder
}

// auditRecorder is the subset of *audit.Sink this package depends on.
// There is no import cycle to avoid (audit depends on writequeue and
// store only); the narrow interface keeps the dependency explicit and
// testable.
type auditRecorder interface {
	Record(ctx context.Context, kind models.EventKind, userID, username, clientIP, detail string)
}

func New(st *store.Store, queue *writequeue.Queue, audit auditRecorder) *Store {
	return &Store{st: st, queue: queue, audit: audit}
}

// Get reads a key. Absence of the key — or of the whole table — both
// resolve to ("", false), never an error (spec.md 4.4: "tolerant of
// absence on read").
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	h, err := s.st.OpenRead(ctx)
	if err != nil {
		return "", false
	}
	defer h.Close()

	var value string
	err = h.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) || err != nil {
		return "", false
	}
	return value, true
}

// GetBaseURL returns the configured base URL, or "" if unset.
func (s *Store) GetBaseURL(ctx context.Context) string {
	v, _ := s.Get(ctx, models.SettingBaseURLKey)
	return v
}

// Set writes a key, validating it when the key is the base URL. The
// audit detail carries the old and new values (spec.md 4.4), read under
// the same Get path used by callers so a missing prior value renders as
// "(unset)" rather than an empty string that looks like a no-op change.
// Requires the settings table to exist (it always does after Store.Open
// runs schema.sql); a missing table here IS an error, unlike Get.
func (s *Store) Set(ctx context.Context, actorID, key, value string) error {
	if key == models.SettingBaseURLKey {
		if err := validateBaseURL(value); err != nil {
			return apperrors.NewValidation("invalid_base_url", err.Error())
		}
		value = strings.TrimRight(value, "/")
	}

	oldValue, ok := s.Get(ctx, key)
	if !ok {
		oldValue = "(unset)"
	}

	err := s.queue.Submit(ctx,
		`INSERT INTO settings (key, value, updated_by, updated_at) VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_by = excluded.updated_by, updated_at = excluded.updated_at`,
		key, value, actorID,
	)
	if err != nil {
		return apperrors.NewInternal(err)
	}

	detail := "setting=" + key + " old=" + oldValue + " new=" + value
	s.audit.Record(ctx, models.EventSystemSettingsChanged, actorID, "", "", detail)
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("base URL must use http or https")
	}
	if u.Host == "" {
		return errors.New("base URL must include a host")
	}
	return nil
}
