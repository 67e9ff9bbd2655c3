package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/convolab-backend/internal/http/response"
	"github.com/yungbote/convolab-backend/internal/platform/ctxutil"
)

const headerUserID = "X-User-ID"

// AttachRequestContext reads the caller's id from X-User-ID. Authentication
// happens upstream; a missing header means an anonymous owner.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rd := &ctxutil.RequestData{}
		if raw := strings.TrimSpace(c.GetHeader(headerUserID)); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.RespondError(c, http.StatusBadRequest, "invalid_user_id", err)
				c.Abort()
				return
			}
			rd.UserID = id
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}
