package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"

	"github.com/teangalab/beal/internal/observe"
)

// requestMetrics records request latency and logs completion for every
// request. The route template (not the raw path) is used as the path
// attribute to keep metric cardinality bounded.
func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.opts.Metrics.HTTPRequestDuration.Record(c.Request.Context(), duration.Seconds(),
			metric.WithAttributes(
				observe.Attr("method", c.Request.Method),
				observe.Attr("path", path),
			),
		)
		s.log.Info("request completed",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", duration,
		)
	}
}
