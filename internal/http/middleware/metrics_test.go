package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/apierr"
)

func TestMetricsLabelsErrorKindAndSkipsScrapes(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "true")
	m := observability.Init(nil)
	if m == nil {
		t.Fatalf("Init: metrics disabled")
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.POST("/api/courses/:id/audio", func(c *gin.Context) {
		_ = c.Error(apierr.Conflict(errors.New("audio already generating")))
		c.Status(http.StatusConflict)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/courses/c-1/audio", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	out := rec.Body.String()

	found := false
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "cl_api_requests_total{") {
			continue
		}
		if strings.Contains(line, `route="/metrics"`) {
			t.Fatalf("scrape counted: %s", line)
		}
		if strings.Contains(line, `route="/api/courses/:id/audio"`) &&
			strings.Contains(line, `error_kind="concurrency_conflict"`) &&
			strings.Contains(line, `status="409"`) {
			found = true
		}
	}
	if !found {
		t.Fatalf("conflict request not recorded:\n%s", out)
	}
}
