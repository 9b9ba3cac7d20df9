package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/bpsong/mailroom/internal/models"
)

type fakeSessionValidator struct {
	user    *models.User
	session *models.Session
	err     error
}

func (f *fakeSessionValidator) ValidateSession(ctx context.Context, token string) (*models.User, *models.Session, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.user, f.session, nil
}

func newAuthRouter(v sessionValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthenticationBinding(v))
	r.GET("/dashboard", func(c *gin.Context) {
		if _, ok := CurrentUser(c); ok {
			c.String(http.StatusOK, "authenticated")
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	r.GET(ForceChangePasswordPath, func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuthenticationBinding_NoCookiePassesThroughAnonymous(t *testing.T) {
	r := newAuthRouter(&fakeSessionValidator{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, "anonymous", w.Body.String())
}

func TestAuthenticationBinding_ValidCookieBindsUser(t *testing.T) {
	v := &fakeSessionValidator{user: &models.User{ID: "u1", Username: "alice"}, session: &models.Session{ID: "s1"}}
	r := newAuthRouter(v)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	r.ServeHTTP(w, req)
	require.Equal(t, "authenticated", w.Body.String())
}

func TestAuthenticationBinding_MustChangePasswordRedirects(t *testing.T) {
	v := &fakeSessionValidator{user: &models.User{ID: "u1", MustChangePassword: true}, session: &models.Session{ID: "s1"}}
	r := newAuthRouter(v)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, ForceChangePasswordPath, w.Header().Get("Location"))
}

func TestAuthenticationBinding_MustChangePasswordAllowsForceChangeEndpoint(t *testing.T) {
	v := &fakeSessionValidator{user: &models.User{ID: "u1", MustChangePassword: true}, session: &models.Session{ID: "s1"}}
	r := newAuthRouter(v)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, ForceChangePasswordPath, nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
