package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func preflight(t *testing.T, origin string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.Use(CORS())
	r.POST("/api/courses", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/api/courses", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-User-ID")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsLocalDevOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, origin := range []string{"http://localhost:5173", "http://127.0.0.1:3000"} {
		rec := preflight(t, origin)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s status: want=%d got=%d", origin, http.StatusNoContent, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != origin {
			t.Fatalf("allow-origin: want=%q got=%q", origin, got)
		}
	}
}

func TestCORSOriginsFromEnv(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://studio.example.com, ")
	rec := preflight(t, "https://studio.example.com")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://studio.example.com" {
		t.Fatalf("allow-origin: got=%q", got)
	}
	rec = preflight(t, "http://localhost:5173")
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("default origin should be replaced")
	}
}
