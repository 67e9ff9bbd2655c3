package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler { return &HealthHandler{db: db} }

// HealthCheck answers "ok" while the database answers pings.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
	}
	c.String(http.StatusOK, "ok")
}
