package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourname/babylog/internal/caregiver"
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with the correlation ID the handlers log
// under, minting one when the caller did not send their own, and echoes it
// back on the response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// NewRouter wires all routes; shared by the server entrypoint and the API
// tests.
func NewRouter(app App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(caregiver.Middleware(app.Caregivers()))

	r.POST("/events", PostEvent(app))
	r.GET("/events", GetEvents(app))
	r.DELETE("/events/:id", DeleteEvent(app))

	r.POST("/sleep/start", PostSleepStart(app))
	r.POST("/sleep/end", PostSleepEnd(app))

	r.POST("/corrections/:kind", PostCorrection(app))

	r.GET("/analytics", GetAnalytics(app))
	r.GET("/insights", GetInsights(app))

	return r
}
