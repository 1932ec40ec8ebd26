package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

type HTTPMetrics interface {
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

// MetricsMiddleware records one sample per request, labelled by the matched
// route pattern so path ids do not explode label cardinality.
func MetricsMiddleware(metrics HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
