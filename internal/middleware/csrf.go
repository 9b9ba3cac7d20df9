// Package middleware provides HTTP middleware for the mailroom API.
// This file implements CSRF protection using the double-submit cookie
// pattern: a cookie carries the expected token, and either an
// X-CSRF-Token header or a handler-validated form field must match it
// with a constant-time comparison.
package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// CSRFCookieName is the cookie carrying the expected CSRF token.
	// Not HttpOnly: templates read it to populate hidden form fields.
	CSRFCookieName = "csrf_token"

	// CSRFTokenHeader is the header JS clients send the token back in.
	CSRFTokenHeader = "X-CSRF-Token"

	// CSRFContextKey is where the expected token is published for
	// handlers that must validate a form field instead of a header.
	CSRFContextKey = "csrf_token"

	csrfTokenBytes = 16 // 128 bits
)

var csrfExemptPrefixes = []string{"/static/", "/uploads/", "/docs", "/redoc", "/openapi.json"}

func csrfExempt(path string) bool {
	if path == "/health" {
		return true
	}
	for _, p := range csrfExemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

var csrfProtectedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CSRFProtection implements spec.md 4.7's CSRF step. A cookie is issued
// on the first response that lacks one. Protected methods (POST, PUT,
// PATCH, DELETE) require that cookie to already be present; its absence
// is a 403 regardless of method. If the request carries an
// X-CSRF-Token header, it is compared to the cookie value in constant
// time; mismatch is a 403. If there is no header, the expected value is
// published under CSRFContextKey so the handler can validate a form
// field the same way.
func CSRFProtection(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if csrfExempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		protected := csrfProtectedMethods[c.Request.Method]

		cookieToken, err := c.Cookie(CSRFCookieName)
		hasCookie := err == nil && cookieToken != ""

		if !hasCookie {
			if protected {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "csrf_cookie_missing",
				})
				return
			}

			newToken, genErr := generateCSRFToken()
			if genErr != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "failed to establish csrf token",
				})
				return
			}
			c.SetSameSite(http.SameSiteStrictMode)
			c.SetCookie(CSRFCookieName, newToken, 0, "/", "", production, false)
			cookieToken = newToken
		}

		c.Set(CSRFContextKey, cookieToken)

		if !protected {
			c.Next()
			return
		}

		if headerToken := c.GetHeader(CSRFTokenHeader); headerToken != "" {
			if subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) != 1 {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "csrf_token_mismatch",
				})
				return
			}
		}
		// No header: the handler validates a form field against
		// GetCSRFToken(c) using the same constant-time comparison.

		c.Next()
	}
}

// GetCSRFToken returns the expected CSRF token for the current request,
// for handlers that need to validate a form field or render it into a
// template.
func GetCSRFToken(c *gin.Context) string {
	if v, ok := c.Get(CSRFContextKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
