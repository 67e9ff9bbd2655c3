package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/convolab-backend/internal/http/response"
	"github.com/yungbote/convolab-backend/internal/services"
)

type LineHandler struct {
	lines services.LineRenderingService
}

func NewLineHandler(lines services.LineRenderingService) *LineHandler {
	return &LineHandler{lines: lines}
}

// POST /api/courses/:id/lines
func (h *LineHandler) SynthesizeLine(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	var in services.SynthesizeLineInput
	if !bindJSON(c, &in) {
		return
	}
	rendering, err := h.lines.SynthesizeLine(c.Request.Context(), courseID, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"rendering": rendering})
}

// GET /api/courses/:id/lines
func (h *LineHandler) ListLines(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	renderings, err := h.lines.ListLineRenderings(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"renderings": renderings})
}

// DELETE /api/lines/:id
func (h *LineHandler) DeleteLine(c *gin.Context) {
	renderingID, ok := uuidParam(c, "id", "invalid_line_rendering_id")
	if !ok {
		return
	}
	if err := h.lines.DeleteLineRendering(c.Request.Context(), renderingID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": true})
}
