package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/caregiver"
	"github.com/yourname/babylog/internal/service"
)

func PostSleepStart(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body service.StartSleepRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), internal.NewValidationError("", "invalid JSON: "+err.Error()))
			return
		}
		if body.UserName == "" {
			if name, ok := c.Get(caregiver.ContextKey); ok {
				body.UserName = name.(string)
			}
		}
		ev, err := service.StartSleep(c.Request.Context(), app.Store(), app.Caregivers(), &body)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleCreated(c, app.Logger(), ev)
	}
}

func PostSleepEnd(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body service.EndSleepRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), internal.NewValidationError("", "invalid JSON: "+err.Error()))
			return
		}
		if body.UserName == "" {
			if name, ok := c.Get(caregiver.ContextKey); ok {
				body.UserName = name.(string)
			}
		}
		ev, err := service.EndSleep(c.Request.Context(), app.Store(), app.Caregivers(), &body)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), ev, nil)
	}
}
