package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/univern/academics-api/internal/service"
)

// Metrics returns middleware that records per-route latency and status
// counters. The templated route path is used as the label so that
// /students/42 and /students/43 land in the same series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/metrics" {
			// Scrapes would dominate the histograms.
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)
	}
}
