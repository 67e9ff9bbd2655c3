package app

import (
	"gorm.io/gorm"

	apphttp "github.com/yungbote/convolab-backend/internal/http"
	httpH "github.com/yungbote/convolab-backend/internal/http/handlers"
	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Course   *httpH.CourseHandler
	Pipeline *httpH.PipelineHandler
	Job      *httpH.JobHandler
	Line     *httpH.LineHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		Course:   httpH.NewCourseHandler(log, services.Course, services.Pipeline),
		Pipeline: httpH.NewPipelineHandler(log, services.Pipeline),
		Job:      httpH.NewJobHandler(services.Jobs),
		Line:     httpH.NewLineHandler(services.Lines),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, mediaDir string, metrics *observability.Metrics) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		MediaDir:        mediaDir,
		Metrics:         metrics,
		HealthHandler:   handlers.Health,
		CourseHandler:   handlers.Course,
		PipelineHandler: handlers.Pipeline,
		JobHandler:      handlers.Job,
		LineHandler:     handlers.Line,
	})
}
