package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestAllowedHTTPMethods_AllowsKnownVerbs(t *testing.T) {
	r := gin.New()
	r.Use(AllowedHTTPMethods())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAllowedHTTPMethods_RejectsUnknownVerb(t *testing.T) {
	r := gin.New()
	r.Use(AllowedHTTPMethods())
	r.Handle("PROPFIND", "/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PROPFIND", "/x", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.NotEmpty(t, w.Header().Get("Allow"))
}

func TestDisallowedHTTPMethods_BlocksTraceAndConnect(t *testing.T) {
	r := gin.New()
	r.Use(DisallowedHTTPMethods())
	r.Handle(http.MethodTrace, "/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.Handle(http.MethodConnect, "/y", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodTrace, "/x", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodConnect, "/y", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w2.Code)
}

func TestDisallowedHTTPMethods_PassesThroughOrdinaryVerbs(t *testing.T) {
	r := gin.New()
	r.Use(DisallowedHTTPMethods())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
