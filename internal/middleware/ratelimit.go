package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Bucket names for spec.md 4.7's two-bucket sliding window.
const (
	BucketLogin = "login"
	BucketAPI   = "api"

	// DefaultLoginRate is R_login: attempts per minute on the login path.
	DefaultLoginRate = 10
	// DefaultAPIRate is R_api: requests per minute on all other routes.
	DefaultAPIRate = 100

	slidingWindow = time.Minute
	retryAfter    = "60"
)

var rateLimitExemptPrefixes = []string{"/static/", "/uploads/"}

func rateLimitExempt(path string) bool {
	switch path {
	case "/health", "/docs", "/redoc", "/openapi.json":
		return true
	}
	for _, p := range rateLimitExemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// SlidingWindowLimiter implements a hard-cliff sliding-window counter per
// (key, bucket): exactly limit requests succeed inside any trailing
// window of length slidingWindow, the next one is rejected. A
// token-bucket's continuous refill cannot produce that exact boundary,
// so timestamps are tracked explicitly instead.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
}

func NewSlidingWindowLimiter(limit int) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
	}
}

// Allow records the attempt at now and reports whether it is within the
// limit for the trailing window ending at now.
func (l *SlidingWindowLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-slidingWindow)
	kept := l.windows[key][:0]
	for _, ts := range l.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.windows[key] = kept
		return false
	}

	l.windows[key] = append(kept, now)
	return true
}

// RateLimiters holds the two in-memory sliding-window counters wired
// into RequestPipeline. Counters are per-process and reset on restart
// (spec.md 4.7).
type RateLimiters struct {
	login *SlidingWindowLimiter
	api   *SlidingWindowLimiter
}

func NewRateLimiters(loginRate, apiRate int) *RateLimiters {
	return &RateLimiters{
		login: NewSlidingWindowLimiter(loginRate),
		api:   NewSlidingWindowLimiter(apiRate),
	}
}

// Middleware applies the login bucket to loginPath and the api bucket to
// every other non-exempt path, keyed by client IP.
func (rl *RateLimiters) Middleware(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if rateLimitExempt(path) {
			c.Next()
			return
		}

		limiter := rl.api
		bucket := BucketAPI
		if path == loginPath {
			limiter = rl.login
			bucket = BucketLogin
		}

		key := bucket + ":" + c.ClientIP()
		if !limiter.Allow(key, time.Now()) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate_limited",
				"retry_after_seconds": func() int {
					n, _ := strconv.Atoi(retryAfter)
					return n
				}(),
			})
			return
		}

		c.Next()
	}
}
