package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/convolab-backend/internal/platform/envutil"
)

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// CORS allows the dev frontends by default; CORS_ALLOWED_ORIGINS replaces the
// list with a comma-separated set.
func CORS() gin.HandlerFunc {
	origins := envutil.Strings("CORS_ALLOWED_ORIGINS", defaultOrigins)
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With", headerUserID, headerTraceID, headerRequestID},
		ExposeHeaders:    []string{headerTraceID, headerRequestID},
		AllowCredentials: true,
	})
}
