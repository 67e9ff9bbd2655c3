package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/convolab-backend/internal/platform/apierr"
	"github.com/yungbote/convolab-backend/internal/platform/ctxutil"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

// opsRoutes are polled by infrastructure and only logged at debug level
// unless they fail.
var opsRoutes = map[string]bool{
	"/healthcheck": true,
	"/metrics":     true,
}

// RequestLogger logs one line per request. Course and job routes carry the
// entity id so a course's pipeline can be followed across requests, and
// failures carry the apierr kind and stage a client would retry.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		fields = append(fields, entityFields(c, route)...)
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			if td.TraceID != "" {
				fields = append(fields, "trace_id", td.TraceID)
			}
			if td.RequestID != "" {
				fields = append(fields, "request_id", td.RequestID)
			}
		}
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil && rd.UserID != uuid.Nil {
			fields = append(fields, "user_id", rd.UserID.String())
		}
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			fields = append(fields, "error", err.Error(), "error_kind", string(apierr.KindOf(err)))
			if stage := apierr.StageOf(err); stage != "" {
				fields = append(fields, "failed_stage", stage)
			}
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		case opsRoutes[route] || strings.HasPrefix(route, "/media/"):
			log.Debug("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// entityFields names the :id param after the resource the route addresses.
func entityFields(c *gin.Context, route string) []interface{} {
	id := c.Param("id")
	if id == "" {
		return nil
	}
	var out []interface{}
	switch {
	case strings.HasPrefix(route, "/api/courses/"):
		out = append(out, "course_id", id)
		if order := c.Param("order"); order != "" {
			out = append(out, "exchange_order", order)
		}
		if stage := c.Param("stage"); stage != "" {
			out = append(out, "stage", stage)
		}
	case strings.HasPrefix(route, "/api/jobs/"):
		out = append(out, "job_id", id)
	case strings.HasPrefix(route, "/api/lines/"):
		out = append(out, "line_id", id)
	}
	return out
}
