package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uc-timetable-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route so stray
// paths do not grow the label set.
const unmatchedRoute = "unmatched"

// Metrics returns middleware that captures request metrics using the provided service.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
