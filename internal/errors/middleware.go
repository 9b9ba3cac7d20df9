package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HandleError writes the appropriate JSON error response for err and
// aborts the request. Internal errors are logged with details; client
// errors are logged at a lower severity without details leaking to the
// client.
func HandleError(c *gin.Context, err error) {
	ae := As(err)
	status := StatusCode(ae.Kind)

	ev := log.Error()
	if status < http.StatusInternalServerError {
		ev = log.Warn()
	}
	ev.Str("kind", string(ae.Kind)).Str("reason", ae.Reason).Str("details", ae.Details).
		Str("path", c.Request.URL.Path).Msg(ae.Message)

	c.AbortWithStatusJSON(status, ae.ToResponse())
}

// Recovery converts panics into a 500 response instead of crashing the
// handler goroutine. The WriteQueue's own worker goroutine is explicitly
// NOT recovered (see writequeue.Queue) — a panic there is a fatal bug and
// the process is expected to terminate, per spec.md 4.2.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
			Error:   string(Internal),
			Message: "internal error",
		})
	})
}
