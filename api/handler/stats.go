package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/frequency"
)

// Stats returns the handler for GET /api/v1/stats/domains.
//
// Exposes the per-domain scrape activity recorded by the frequency
// tracker: hit counts, change counts, and last-seen timestamps.
func Stats(rec *frequency.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshots := rec.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"domains": snapshots,
			"count":   len(snapshots),
		})
	}
}
