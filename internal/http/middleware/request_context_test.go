package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/convolab-backend/internal/platform/ctxutil"
)

func TestAttachRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen uuid.UUID
	r := gin.New()
	r.Use(TraceContext(), AttachRequestContext())
	r.GET("/x", func(c *gin.Context) {
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			seen = rd.UserID
		}
		c.Status(http.StatusNoContent)
	})

	user := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerUserID, user.String())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != user {
		t.Fatalf("user: want=%s got=%s (status %d)", user, seen, rec.Code)
	}
	if rec.Header().Get(headerRequestID) == "" || rec.Header().Get(headerTraceID) == "" {
		t.Fatalf("trace headers missing: %v", rec.Header())
	}

	seen = user
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusNoContent || seen != uuid.Nil {
		t.Fatalf("anonymous: want nil owner got=%s (status %d)", seen, rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerUserID, "nope")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid user: want=400 got=%d", rec.Code)
	}
}

func TestTraceContextKeepsClientRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceContext())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get(headerRequestID); got != "req-123" {
		t.Fatalf("request id: want=req-123 got=%q", got)
	}
}
