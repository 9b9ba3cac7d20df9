package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Request Size Limits, distinct from PackageCore's S_max attachment cap
// and applied before CSRF/validation even run.
const (
	// MaxRequestBodySize is the outer backstop applied to every request
	// regardless of route (10MB).
	MaxRequestBodySize int64 = 10 * 1024 * 1024

	// MaxJSONPayloadSize is the tighter cap layered onto the JSON
	// mutation routes (create/update package, recipient, user, login);
	// none of these bodies legitimately exceed a few KB.
	MaxJSONPayloadSize int64 = 5 * 1024 * 1024
)

// RequestSizeLimiter limits the size of incoming HTTP requests
// to prevent DoS attacks via oversized payloads
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip for GET, HEAD, OPTIONS requests (no body)
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			c.Next()
			return
		}

		// Get Content-Length header
		contentLength := c.Request.ContentLength

		// Check if Content-Length exceeds limit
		if contentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":      "Request entity too large",
				"message":    "Request body exceeds maximum allowed size",
				"max_size_mb": float64(maxSize) / (1024 * 1024),
			})
			return
		}

		// Wrap the request body with a LimitReader
		// This prevents reading more than maxSize bytes even if Content-Length is lying
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

		c.Next()
	}
}

// FileUploadLimiter limits file upload size to maxSize, for routes that
// accept multipart bodies (package photos, recipient CSV import) and
// need a ceiling sized from configuration rather than the generic
// JSON/form default. It is layered under DefaultSizeLimiter, which
// remains the outer hard ceiling every request passes through first;
// operators who raise the upload limit above MaxRequestBodySize are
// bound by the outer ceiling, not this one.
func FileUploadLimiter(maxSize int64) gin.HandlerFunc {
	return RequestSizeLimiter(maxSize)
}

// JSONSizeLimiter caps the JSON mutation routes at MaxJSONPayloadSize,
// tighter than the generic DefaultSizeLimiter ceiling it runs under.
func JSONSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxJSONPayloadSize)
}

// DefaultSizeLimiter uses the default max request body size
func DefaultSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxRequestBodySize)
}
