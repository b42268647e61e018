package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourname/babylog/internal"
	"github.com/yourname/babylog/internal/caregiver"
	"github.com/yourname/babylog/internal/service"
)

func PostEvent(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body service.EventRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), internal.NewValidationError("", "invalid JSON: "+err.Error()))
			return
		}
		if body.UserName == "" {
			if name, ok := c.Get(caregiver.ContextKey); ok {
				body.UserName = name.(string)
			}
		}
		ev, err := service.RecordEvent(c.Request.Context(), app.Store(), app.Caregivers(), &body)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleCreated(c, app.Logger(), ev)
	}
}

func GetEvents(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := service.ListEventsRequest{User: c.Query("user")}
		if raw := c.Query("from"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				HandleError(c, app.Logger(), internal.NewValidationError("from", "must be RFC3339"))
				return
			}
			req.From = &t
		}
		if raw := c.Query("to"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				HandleError(c, app.Logger(), internal.NewValidationError("to", "must be RFC3339"))
				return
			}
			req.To = &t
		}
		if raw := c.Query("type"); raw != "" {
			req.Types = []string{raw}
		}
		events, err := service.ListEvents(c.Request.Context(), app.Store(), &req)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), events, map[string]any{"count": len(events)})
	}
}

func DeleteEvent(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			HandleError(c, app.Logger(), internal.NewValidationError("id", "must be an integer"))
			return
		}
		if err := service.DeleteEvent(c.Request.Context(), app.Store(), id); err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), nil, map[string]any{"deleted": id})
	}
}
