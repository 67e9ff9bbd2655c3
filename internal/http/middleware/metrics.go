package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

// Metrics records each API request under its route template and, for
// failures, the apierr kind the handler responded with. Scrapes of /metrics
// are not counted. Unmatched paths share one route label.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.FullPath() == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		kind := ""
		if len(c.Errors) > 0 {
			kind = string(apierr.KindOf(c.Errors.Last().Err))
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), kind, time.Since(start))
	}
}
