package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/convolab-backend/internal/http/response"
	"github.com/yungbote/convolab-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := uuidParam(c, "id", "invalid_job_id")
	if !ok {
		return
	}
	st, err := h.jobs.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, st)
}
