package middleware

import (
	"strconv"
	"time"

	"github.com/burrowgate/burrowgate/internal/logging"
	"github.com/burrowgate/burrowgate/internal/metrics"
	"github.com/burrowgate/burrowgate/internal/utils"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per API request through the global logger and
// feeds the request counter. Log output is gated by LOG_REQUESTS inside the
// logger itself; the metrics count always.
func RequestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		m.HTTPRequest(method, strconv.Itoa(status))

		logger := logging.GetGlobalLogger()
		logger.LogHTTPRequest(
			method,
			path,
			utils.GetRealIP(c),
			status,
			c.Writer.Size(),
			time.Since(start).String(),
		)
	}
}
