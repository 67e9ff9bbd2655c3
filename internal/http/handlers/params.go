package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/convolab-backend/internal/http/response"
	"github.com/yungbote/convolab-backend/internal/platform/ctxutil"
)

func uuidParam(c *gin.Context, name string, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return uuid.Nil, false
	}
	return id, true
}

func intParam(c *gin.Context, name string, code string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return 0, false
	}
	return n, true
}

// bindJSON decodes an optional body. An empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return false
	}
	return true
}

func requestUser(c *gin.Context) uuid.UUID {
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		return rd.UserID
	}
	return uuid.Nil
}
