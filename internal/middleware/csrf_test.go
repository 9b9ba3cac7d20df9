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

func TestGenerateCSRFToken_Unique(t *testing.T) {
	t1, err := generateCSRFToken()
	require.NoError(t, err)
	t2, err := generateCSRFToken()
	require.NoError(t, err)
	require.NotEmpty(t, t1)
	require.NotEqual(t, t1, t2)
}

func newCSRFRouter() *gin.Engine {
	r := gin.New()
	r.Use(CSRFProtection(false))
	r.GET("/safe", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCSRF_IssuesCookieOnSafeRequest(t *testing.T) {
	r := newCSRFRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/safe", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var found bool
	for _, ck := range w.Result().Cookies() {
		if ck.Name == CSRFCookieName {
			found = true
			require.NotEmpty(t, ck.Value)
		}
	}
	require.True(t, found, "expected csrf cookie to be set")
}

func TestCSRF_ProtectedRequestWithoutCookieIsForbidden(t *testing.T) {
	r := newCSRFRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/protected", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRF_ProtectedRequestWithMatchingHeaderSucceeds(t *testing.T) {
	r := newCSRFRouter()

	getW := httptest.NewRecorder()
	getReq := httptest.NewRequest(http.MethodGet, "/safe", nil)
	r.ServeHTTP(getW, getReq)
	var token string
	for _, ck := range getW.Result().Cookies() {
		if ck.Name == CSRFCookieName {
			token = ck.Value
		}
	}
	require.NotEmpty(t, token)

	postW := httptest.NewRecorder()
	postReq := httptest.NewRequest(http.MethodPost, "/protected", nil)
	postReq.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	postReq.Header.Set(CSRFTokenHeader, token)
	r.ServeHTTP(postW, postReq)

	require.Equal(t, http.StatusOK, postW.Code)
}

func TestCSRF_ProtectedRequestWithMismatchedHeaderIsForbidden(t *testing.T) {
	r := newCSRFRouter()

	getW := httptest.NewRecorder()
	getReq := httptest.NewRequest(http.MethodGet, "/safe", nil)
	r.ServeHTTP(getW, getReq)
	var token string
	for _, ck := range getW.Result().Cookies() {
		if ck.Name == CSRFCookieName {
			token = ck.Value
		}
	}

	postW := httptest.NewRecorder()
	postReq := httptest.NewRequest(http.MethodPost, "/protected", nil)
	postReq.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})
	postReq.Header.Set(CSRFTokenHeader, "wrong-token")
	r.ServeHTTP(postW, postReq)

	require.Equal(t, http.StatusForbidden, postW.Code)
}

func TestCSRF_ExemptPathNeverChecked(t *testing.T) {
	r := newCSRFRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
