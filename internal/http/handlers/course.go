package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/convolab-backend/internal/http/response"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
	"github.com/yungbote/convolab-backend/internal/services"
)

type CourseHandler struct {
	log      *logger.Logger
	courses  services.CourseService
	pipeline services.CoursePipelineService
}

func NewCourseHandler(log *logger.Logger, courses services.CourseService, pipeline services.CoursePipelineService) *CourseHandler {
	return &CourseHandler{
		log:      log.With("handler", "CourseHandler"),
		courses:  courses,
		pipeline: pipeline,
	}
}

// POST /api/courses
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var in services.CreateCourseInput
	if !bindJSON(c, &in) {
		return
	}
	course, err := h.courses.Create(c.Request.Context(), requestUser(c), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"course": course})
}

// GET /api/courses/:id
func (h *CourseHandler) GetCourse(c *gin.Context) {
	courseID, ok := uuidParam(c, "id", "invalid_course_id")
	if !ok {
		return
	}
	out, err := h.pipeline.GetCourseStages(c.Request.Context(), courseID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}
