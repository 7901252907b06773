package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/harvest/api/middleware"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/pipeline"
	"github.com/use-agent/harvest/webhook"
)

// Scrape returns the handler for POST /api/v1/scrape.
//
// The handler parses and validates the payload, stamps a request ID,
// derives the operator-side options, and hands off to the pipeline. All
// orchestration (cache, engine selection, specialty rerouting,
// postprocessing) lives in the pipeline; the handler only translates
// between HTTP and the pipeline's types.
func Scrape(pl *pipeline.Pipeline, notifier *webhook.Notifier, base models.InternalOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		id := uuid.NewString()
		internal := base
		if team, ok := c.Get(middleware.CtxTeamID); ok {
			internal.TeamID = team.(string)
		}

		resp := pl.ScrapeURL(c.Request.Context(), id, req.URL, req.ScrapeOptions, internal)

		out := models.ScrapeResponse{
			Success:             resp.Success,
			RequestID:           id,
			Data:                resp.Document,
			UnsupportedFeatures: flagNames(resp.UnsupportedFeatures),
			Timing: models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			},
		}

		if !resp.Success {
			out.Error = models.Detail(resp.Err)
			c.JSON(statusFor(out.Error.Code), out)
			return
		}

		notifier.Completed(id, resp.Document.Metadata)
		c.JSON(http.StatusOK, out)
	}
}

func flagNames(flags []engine.FeatureFlag) []string {
	if len(flags) == 0 {
		return nil
	}
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = string(f)
	}
	return names
}

// statusFor translates pipeline error codes to HTTP status codes.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeSite, models.ErrCodeSSL, models.ErrCodeDNS, models.ErrCodeProxy:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeActionsNotSupported,
		models.ErrCodeBrandingNotSupported,
		models.ErrCodeZeroDataRetention:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRobotsDenied:
		return http.StatusForbidden // 403
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeCancelled:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError // 500
	}
}
