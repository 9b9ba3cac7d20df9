package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestGzip_CompressesGetWhenAccepted(t *testing.T) {
	r := gin.New()
	r.Use(Gzip(DefaultCompression))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "hello world") })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	defer gr.Close()
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(body))
}

func TestGzip_SkipsNonGetMethods(t *testing.T) {
	r := gin.New()
	r.Use(Gzip(DefaultCompression))
	r.POST("/x", func(c *gin.Context) { c.String(http.StatusOK, "ack") })

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Empty(t, w.Header().Get("Content-Encoding"))
	require.Equal(t, "ack", w.Body.String())
}

func TestGzip_SkipsClientsWithoutGzipSupport(t *testing.T) {
	r := gin.New()
	r.Use(Gzip(DefaultCompression))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "hello world") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Empty(t, w.Header().Get("Content-Encoding"))
	require.Equal(t, "hello world", w.Body.String())
}

func TestGzipWithExclusions_SkipsExcludedPath(t *testing.T) {
	r := gin.New()
	r.Use(GzipWithExclusions(DefaultCompression, []string{"/admin/reports/export"}))
	r.GET("/admin/reports/export", func(c *gin.Context) { c.String(http.StatusOK, "csv,data") })

	req := httptest.NewRequest(http.MethodGet, "/admin/reports/export", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Empty(t, w.Header().Get("Content-Encoding"))
	require.Equal(t, "csv,data", w.Body.String())
}
