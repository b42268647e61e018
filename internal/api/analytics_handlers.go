package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/service"
)

func GetAnalytics(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := app.Config().Location()
		if raw := c.Query("tz"); raw != "" {
			l, err := time.LoadLocation(raw)
			if err != nil {
				HandleError(c, app.Logger(), internal.NewValidationError("tz", "unknown timezone: "+raw))
				return
			}
			loc = l
		}
		asOf := time.Now()
		if raw := c.Query("as_of"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				HandleError(c, app.Logger(), internal.NewValidationError("as_of", "must be RFC3339"))
				return
			}
			asOf = t
		}
		snap, err := service.ComputeAnalytics(c.Request.Context(), app.Store(), asOf, loc, app.Config().RecommendedSleepMinutes)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), snap, nil)
	}
}

func GetInsights(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		loc := app.Config().Location()
		if raw := c.Query("tz"); raw != "" {
			l, err := time.LoadLocation(raw)
			if err != nil {
				HandleError(c, app.Logger(), internal.NewValidationError("tz", "unknown timezone: "+raw))
				return
			}
			loc = l
		}
		insights, err := service.ComputePatternInsights(c.Request.Context(), app.Store(), loc)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), insights, map[string]any{"count": len(insights)})
	}
}
