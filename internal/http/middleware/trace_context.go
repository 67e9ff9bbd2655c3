package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/convolab-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"

	maxClientIDLen = 128
)

// TraceContext stores trace and request ids on the request context so job
// payloads and logs can be correlated. An active otel span wins over the
// client's X-Trace-Id.
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := clientID(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		traceID := ""
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		if traceID == "" {
			traceID = clientID(c.GetHeader(headerTraceID))
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		}))
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

func clientID(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxClientIDLen {
		return ""
	}
	return raw
}
