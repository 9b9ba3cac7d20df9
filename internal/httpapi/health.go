package httpapi

import (
	"net/http"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// Version is set at build time with -ldflags, the way the teacher's
// monitoring handler does it.
var Version = "dev"

// health reports liveness for the single unauthenticated GET /health
// route (spec.md 6): a database ping, free disk space on the volume
// backing the store file, process uptime, and the write queue's current
// depth and staleness since its last checkpoint — the two numbers an
// operator actually needs when the app seems slow. Detailed
// per-subsystem breakdowns (connection pool stats, Prometheus export,
// alerting) are out of scope: one operator-facing endpoint is all
// spec.md 6 asks for.
func (h *handlers) health(c *gin.Context) {
	ctx := c.Request.Context()

	dbStatus := "healthy"
	rh, err := h.d.Store.OpenRead(ctx)
	if err != nil {
		dbStatus = "unhealthy"
	} else {
		if err := rh.QueryRowContext(ctx, "SELECT 1").Scan(new(int)); err != nil {
			dbStatus = "unhealthy"
		}
		rh.Close()
	}

	diskStatus, freeBytes := diskHealth(h.d.Store.Path())

	overall := http.StatusOK
	status := "healthy"
	if dbStatus != "healthy" || diskStatus != "healthy" {
		overall = http.StatusServiceUnavailable
		status = "unhealthy"
	}

	c.JSON(overall, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"checks": gin.H{
			"database": dbStatus,
			"disk_space": gin.H{
				"status":     diskStatus,
				"free_bytes": freeBytes,
			},
			"uptime_seconds": time.Since(h.d.StartedAt).Seconds(),
			"write_queue": gin.H{
				"depth":                    h.d.Queue.Depth(),
				"seconds_since_checkpoint": h.d.Queue.SecondsSinceCheckpoint(),
			},
		},
	})
}

// diskMinFreeBytes is the floor below which disk_space is reported
// unhealthy: below this, WAL checkpoints and new attachments risk
// failing outright.
const diskMinFreeBytes = 100 * 1024 * 1024

func diskHealth(dbPath string) (status string, freeBytes uint64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(filepath.Dir(dbPath), &stat); err != nil {
		return "unknown", 0
	}
	freeBytes = stat.Bavail * uint64(stat.Bsize)
	if freeBytes < diskMinFreeBytes {
		return "unhealthy", freeBytes
	}
	return "healthy", freeBytes
}
