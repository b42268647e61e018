package caregiver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourname/babylog/internal/response"
)

const ContextKey = "caregiver"

// Middleware resolves the X-Caregiver header against the household
// allow-list and stores the canonical name on the request context. This is
// identification only; there is no authentication layer.
func Middleware(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("X-Caregiver")
		if header == "" {
			c.Next()
			return
		}
		name, ok := reg.Resolve(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, response.BadRequest("unknown caregiver: "+header))
			return
		}
		c.Set(ContextKey, name)
		c.Next()
	}
}
