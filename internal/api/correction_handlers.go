package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yourname/babylog/internal/service"
)

func PostCorrection(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := service.PassKind(c.Param("kind"))
		report, err := service.RunCorrectionPass(c.Request.Context(), app.Store(), app.Logger(), kind)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), report, map[string]any{
			"corrected": len(report.Corrected),
			"anomalies": len(report.Anomalies),
		})
	}
}
