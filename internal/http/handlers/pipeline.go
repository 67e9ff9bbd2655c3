package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/convolab-backend/internal/domain/courses"
	"github.com/yungbote/convolab-backend/internal/http/response"
	"github.com/yungbote/convolab-backend/internal/modules/course/scriptcfg"
	"github.com/yungbote/convolab-backend/internal/modules/course/stages"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/services"
)

// PipelineHandler drives a course through its generation stages. Each POST
// appends a new snapshot for its stage and returns it with its version.
type PipelineHandler struct {
	log      *logger.Logger
	pipeline services.CoursePipelineService
}

func NewPipelineHandler(log *logger.Logger, pipeline services.CoursePipelineService) *PipelineHandler {
	return &PipelineHandler{
		log:      log.With("handler", "PipelineHandler"),
		pipeline: pipeline,
	}
}

type generateDialogueRequest struct {
	CustomPrompt string `json:"customPrompt"`
}

// POST /api/courses/:id/prompt
func (h *PipelineHandler) BuildPrompt(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	out, err := h.pipeline.BuildPrompt(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/courses/:id/dialogue
func (h *PipelineHandler) GenerateDialogue(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	var req generateDialogueRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.pipeline.GenerateDialogue(c.Request.Context(), courseID, req.CustomPrompt)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// PUT /api/courses/:id/exchanges/:order
func (h *PipelineHandler) UpdateExchange(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	order, ok := intParam(c, "order", "invalid_exchange_order")
	if !ok {
		return
	}
	var edited courses.DialogueExchange
	if !bindJSON(c, &edited) {
		return
	}
	out, err := h.pipeline.UpdateExchange(c.Request.Context(), courseID, order, edited)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/courses/:id/script-config
func (h *PipelineHandler) BuildScriptConfig(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	out, err := h.pipeline.BuildScriptConfig(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// PATCH /api/courses/:id/script-config
func (h *PipelineHandler) UpdateScriptConfig(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	var patch scriptcfg.Patch
	if !bindJSON(c, &patch) {
		return
	}
	out, err := h.pipeline.UpdateScriptConfig(c.Request.Context(), courseID, patch)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/courses/:id/script-config/reset
func (h *PipelineHandler) ResetScriptConfig(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	out, err := h.pipeline.ResetScriptConfig(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/courses/:id/script
func (h *PipelineHandler) GenerateScript(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	out, err := h.pipeline.GenerateScript(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/courses/:id/audio
func (h *PipelineHandler) GenerateAudio(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	jobID, err := h.pipeline.GenerateAudio(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("audio job enqueued", "course_id", courseID, "job_id", jobID)
	response.RespondAccepted(c, gin.H{"jobId": jobID})
}

// POST /api/courses/:id/audio/retry
func (h *PipelineHandler) RetryAudio(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	jobID, err := h.pipeline.RetryAudio(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("audio job retried", "course_id", courseID, "job_id", jobID)
	response.RespondAccepted(c, gin.H{"jobId": jobID})
}

// GET /api/courses/:id/stages/:stage
func (h *PipelineHandler) GetSnapshot(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	stage, err := stages.Parse(c.Param("stage"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.pipeline.GetSnapshot(c.Request.Context(), courseID, stage)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}
