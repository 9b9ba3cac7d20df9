// Package middleware - securityheaders.go
//
// Implements the fixed security header set of spec.md 4.7. Unlike the
// broader header catalog this file once carried, the set here is exact
// and does not vary by route: every response gets the same headers,
// with HSTS gated to production deployments only.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CSPHTMXOrigin is the additional script-src origin the content security
// policy allows for HTMX (or any other first-party script host); empty
// means no extra origin is added beyond 'self'.
var CSPHTMXOrigin = ""

func buildCSP() string {
	scriptSrc := "script-src 'self' 'unsafe-inline'"
	if CSPHTMXOrigin != "" {
		scriptSrc += " " + CSPHTMXOrigin
	}
	return "default-src 'self'; " +
		scriptSrc + "; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"connect-src 'self'"
}

// SecurityHeaders applies spec.md 4.7's exact header set to every
// response. HSTS is only added when production is true.
func SecurityHeaders(production bool) gin.HandlerFunc {
	csp := buildCSP()
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", csp)
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=(self), payment=(), usb=()")
		if production {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// SetSessionCookie sets the session cookie per spec.md 4.7:
// HttpOnly, SameSite=Lax, Secure only in production, no explicit
// max-age (browser-session scoped; server-side expiry is authoritative).
func SetSessionCookie(c *gin.Context, name, value string, production bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, 0, "/", "", production, true)
}
