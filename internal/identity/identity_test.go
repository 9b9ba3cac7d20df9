package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bpsong/mailroom/internal/models"
	"github.com/bpsong/mailroom/internal/store"
	"github.com/bpsong/mailroom/internal/writequeue"
)

type fakeAudit struct {
	events []models.EventKind
}

func (f *fakeAudit) Record(ctx context.Context, kind models.EventKind, userID, username, clientIP, detail string) {
	f.events = append(f.events, kind)
}

func newTestService(t *testing.T) (*Service, *store.Store, *fakeAudit) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := writequeue.New(st)
	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	t.Cleanup(cancel)
	time.Sleep(10 * time.Millisecond)

	audit := &fakeAudit{}
	policy := DefaultPolicy()
	policy.UnknownUserDelay = time.Millisecond // keep tests fast
	svc := New(st, q, audit, policy)
	return svc, st, audit
}

func seedUser(t *testing.T, svc *Service, q *writequeue.Queue, username, password string) string {
	t.Helper()
	hash, err := svc.HashInitialPassword(password)
	require.NoError(t, err)
	id := "user-" + username
	err = q.Submit(context.Background(),
		`INSERT INTO users (id, username, password_hash, full_name, role, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, datetime('now'), datetime('now'))`,
		id, username, hash, username, "operator")
	require.NoError(t, err)
	return id
}

func TestValidatePasswordStrength(t *testing.T) {
	svc, _, _ := newTestService(t)

	cases := []struct {
		name    string
		pass    string
		wantErr bool
	}{
		{"too short", "Aa1!", true},
		{"no upper", "lowercase1!aaaa", true},
		{"no digit", "NoDigitsHere!!", true},
		{"no symbol", "NoSymbolsHere1", true},
		{"valid", "GoodPass1!word", false},
	}
	for _, c := range cases {
		err := svc.ValidatePasswordStrength(c.pass)
		if c.wantErr {
			require.Errorf(t, err, "case %s", c.name)
		} else {
			require.NoErrorf(t, err, "case %s", c.name)
		}
	}
}

func TestLogin_UnknownUserReturnsGenericFailure(t *testing.T) {
	svc, _, audit := newTestService(t)

	_, err := svc.Login(context.Background(), "nosuchuser", "whatever", "127.0.0.1", "ua")
	require.Error(t, err)
	require.Contains(t, audit.events, models.EventLoginFailed)
}

func TestLogin_WrongPasswordIncrementsFailedCount(t *testing.T) {
	svc, st, audit := newTestService(t)
	q := writequeue.New(st)
	// seed through a second queue bound to the same store, running
	// alongside the service's own queue.
	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	id := seedUser(t, svc, q, "alice", "CorrectHorse1!")

	_, err := svc.Login(context.Background(), "alice", "WrongPassword1!", "127.0.0.1", "ua")
	require.Error(t, err)
	require.Contains(t, audit.events, models.EventLoginFailed)

	user, err := svc.findUserByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 1, user.FailedLoginCount)
}

func TestLogin_Success(t *testing.T) {
	svc, st, audit := newTestService(t)
	q := writequeue.New(st)
	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	seedUser(t, svc, q, "bob", "CorrectHorse1!")

	result, err := svc.Login(context.Background(), "bob", "CorrectHorse1!", "127.0.0.1", "ua")
	require.NoError(t, err)
	require.NotEmpty(t, result.SessionToken)
	require.Contains(t, audit.events, models.EventLogin)

	user, sess, err := svc.ValidateSession(context.Background(), result.SessionToken)
	require.NoError(t, err)
	require.Equal(t, "bob", user.Username)
	require.Equal(t, result.Session.ID, sess.ID)
}

func TestValidateSession_UnknownTokenFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.ValidateSession(context.Background(), "not-a-real-token")
	require.Error(t, err)
}
