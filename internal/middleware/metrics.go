package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"ridehail/internal/observability"
)

// MetricsMiddleware returns middleware that counts requests by route and
// status code.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		observability.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}
