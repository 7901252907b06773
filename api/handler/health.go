package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/scraper"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Pool    scraper.PoolStats `json:"pool"`
	Version string            `json:"version"`
}

// Health returns the handler for GET /api/v1/health.
//
// Reports tab pool utilisation and degrades status when more than 80%
// of pages are active.
func Health(sc *scraper.Scraper, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sc.Stats()

		status := "healthy"
		if stats.HardMax > 0 && stats.ActivePages > int(float64(stats.HardMax)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Pool:    stats,
			Version: "0.1.0",
		})
	}
}
