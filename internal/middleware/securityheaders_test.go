package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func runSecurityHeaders(t *testing.T, production bool) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.Use(SecurityHeaders(production))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w
}

func TestSecurityHeaders_FixedSet(t *testing.T) {
	w := runSecurityHeaders(t, false)

	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	require.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	require.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
	require.Equal(t, "geolocation=(), microphone=(), camera=(self), payment=(), usb=()", w.Header().Get("Permissions-Policy"))
}

func TestSecurityHeaders_HSTSOnlyInProduction(t *testing.T) {
	dev := runSecurityHeaders(t, false)
	require.Empty(t, dev.Header().Get("Strict-Transport-Security"))

	prod := runSecurityHeaders(t, true)
	require.Contains(t, prod.Header().Get("Strict-Transport-Security"), "max-age=31536000")
}

func TestSetSessionCookie_SecureOnlyInProduction(t *testing.T) {
	r := gin.New()
	r.GET("/dev", func(c *gin.Context) {
		SetSessionCookie(c, "session", "tok", false)
		c.Status(http.StatusOK)
	})
	r.GET("/prod", func(c *gin.Context) {
		SetSessionCookie(c, "session", "tok", true)
		c.Status(http.StatusOK)
	})

	devW := httptest.NewRecorder()
	r.ServeHTTP(devW, httptest.NewRequest(http.MethodGet, "/dev", nil))
	var devCookie *http.Cookie
	for _, ck := range devW.Result().Cookies() {
		if ck.Name == "session" {
			devCookie = ck
		}
	}
	require.NotNil(t, devCookie)
	require.True(t, devCookie.HttpOnly)
	require.False(t, devCookie.Secure)

	prodW := httptest.NewRecorder()
	r.ServeHTTP(prodW, httptest.NewRequest(http.MethodGet, "/prod", nil))
	var prodCookie *http.Cookie
	for _, ck := range prodW.Result().Cookies() {
		if ck.Name == "session" {
			prodCookie = ck
		}
	}
	require.NotNil(t, prodCookie)
	require.True(t, prodCookie.Secure)
}
