package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/bpsong/mailroom/internal/audit"
	"github.com/bpsong/mailroom/internal/config"
	"github.com/bpsong/mailroom/internal/identity"
	"github.com/bpsong/mailroom/internal/middleware"
	"github.com/bpsong/mailroom/internal/packages"
	"github.com/bpsong/mailroom/internal/settings"
	"github.com/bpsong/mailroom/internal/store"
	"github.com/bpsong/mailroom/internal/writequeue"
)

// testEnv wires a real store/writequeue/identity/packages/settings stack
// against a temp-dir SQLite file, the same pattern
// internal/identity and internal/packages use for their own tests.
type testEnv struct {
	router *gin.Engine
	queue  *writequeue.Queue
	ident  *identity.Service
	pkgs   *packages.Core
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := writequeue.New(st)
	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	t.Cleanup(cancel)
	time.Sleep(10 * time.Millisecond)

	auditSink := audit.New(q)
	policy := identity.DefaultPolicy()
	policy.UnknownUserDelay = time.Millisecond
	ident := identity.New(st, q, auditSink, policy)
	pkgs := packages.New(st, q, auditSink, t.TempDir())
	settingsStore := settings.New(st, q, auditSink)

	cfg := &config.Config{AppEnv: config.Testing, MaxUploadSize: 5 << 20, RateLimitLogin: 1000, RateLimitAPI: 1000}

	router := NewRouter(Deps{
		Config:    cfg,
		Store:     st,
		Queue:     q,
		Identity:  ident,
		Audit:     auditSink,
		Packages:  pkgs,
		Settings:  settingsStore,
		StartedAt: time.Now(),
	})

	return &testEnv{router: router, queue: q, ident: ident, pkgs: pkgs}
}

func (e *testEnv) seedUser(t *testing.T, username, password, role string) string {
	t.Helper()
	hash, err := e.ident.HashInitialPassword(password)
	require.NoError(t, err)
	id := "user-" + username
	require.NoError(t, e.queue.Submit(context.Background(),
		`INSERT INTO users (id, username, password_hash, full_name, role, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, datetime('now'), datetime('now'))`,
		id, username, hash, username, role))
	return id
}

func (e *testEnv) seedRecipient(t *testing.T) string {
	t.Helper()
	id := "recipient-1"
	require.NoError(t, e.queue.Submit(context.Background(),
		`INSERT INTO recipients (id, employee_id, name, email, department, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, datetime('now'), datetime('now'))`,
		id, "E1", "Carol", "carol@example.com", "Engineering"))
	return id
}

// csrfToken performs an unprotected GET and returns the csrf_token cookie
// value, for use as the X-CSRF-Token header on a protected request.
func (e *testEnv) csrfToken(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.CSRFCookieName {
			return c.Value
		}
	}
	t.Fatal("no csrf cookie issued")
	return ""
}

// login drives the real POST /auth/login route and returns the session
// cookie value for use on subsequent authenticated requests.
func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	csrf := e.csrfToken(t)

	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.CSRFTokenHeader, csrf)
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: csrf})

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie issued")
	return ""
}

// authedRequest builds a request carrying both the session cookie (for
// AuthenticationBinding) and a fresh CSRF pair (for protected methods).
func (e *testEnv) authedRequest(t *testing.T, method, path, sessionToken string, body *strings.Reader) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionToken})
	if method != http.MethodGet {
		csrf := e.csrfToken(t)
		req.Header.Set(middleware.CSRFTokenHeader, csrf)
		req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: csrf})
	}
	return req
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth_ReturnsHealthy(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	decodeJSON(t, w, &body)
	require.Equal(t, "healthy", body["status"])
}

func TestLogin_WrongPasswordReturnsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "Correct-Horse-Battery1", "operator")
	csrf := env.csrfToken(t)

	form := url.Values{"username": {"alice"}, "password": {"wrong-password"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.CSRFTokenHeader, csrf)
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: csrf})

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_SuccessSetsSessionCookieAndReturnsUser(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "Correct-Horse-Battery1", "operator")
	token := env.login(t, "alice", "Correct-Horse-Battery1")
	require.NotEmpty(t, token)
}

func TestDashboard_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutes_ForbiddenForOperatorRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "opuser", "Correct-Horse-Battery1", "operator")
	token := env.login(t, "opuser", "Correct-Horse-Battery1")

	req := env.authedRequest(t, http.MethodGet, "/admin/users", token, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminDashboard_AllowedForAdminRole(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "adminuser", "Correct-Horse-Battery1", "admin")
	token := env.login(t, "adminuser", "Correct-Horse-Battery1")

	req := env.authedRequest(t, http.MethodGet, "/admin/dashboard", token, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	decodeJSON(t, w, &body)
	require.Contains(t, body, "package_counts_by_status")
}

func TestRegisterAndGetPackage_RoundTrips(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "opuser", "Correct-Horse-Battery1", "operator")
	recipientID := env.seedRecipient(t)
	token := env.login(t, "opuser", "Correct-Horse-Battery1")

	body := strings.NewReader(`{"tracking_no":"1Z999","carrier":"UPS","recipient_id":"` + recipientID + `"}`)
	req := env.authedRequest(t, http.MethodPost, "/packages/new", token, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	decodeJSON(t, w, &created)
	pkgID, _ := created["id"].(string)
	require.NotEmpty(t, pkgID)

	getReq := env.authedRequest(t, http.MethodGet, "/packages/"+pkgID, token, nil)
	getW := httptest.NewRecorder()
	env.router.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
}

func TestCreateUser_AdminCannotCreateSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "adminuser", "Correct-Horse-Battery1", "admin")
	token := env.login(t, "adminuser", "Correct-Horse-Battery1")

	body := strings.NewReader(`{"username":"newsuper","password":"correct-horse-battery","full_name":"New Super","role":"super_admin"}`)
	req := env.authedRequest(t, http.MethodPost, "/admin/users/new", token, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestSearchRecipients_JSONAccept(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "opuser", "Correct-Horse-Battery1", "operator")
	env.seedRecipient(t)
	token := env.login(t, "opuser", "Correct-Horse-Battery1")

	req := env.authedRequest(t, http.MethodGet, "/recipients/search?q=Carol", token, nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var recipients []map[string]any
	decodeJSON(t, w, &recipients)
	require.Len(t, recipients, 1)
}
