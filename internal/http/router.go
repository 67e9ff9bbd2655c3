package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/convolab-backend/internal/http/handlers"
	httpMW "github.com/yungbote/convolab-backend/internal/http/middleware"
	"github.com/yungbote/convolab-backend/internal/observability"
	"github.com/yungbote/convolab-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string

	// MediaDir, when set, is served under /media for the local object store.
	MediaDir string
	// Metrics is nil unless METRICS_ENABLED; /metrics is mounted only then.
	Metrics  *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	CourseHandler   *httpH.CourseHandler
	PipelineHandler *httpH.PipelineHandler
	JobHandler      *httpH.JobHandler
	LineHandler     *httpH.LineHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.AttachRequestContext())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.MediaDir != "" {
		r.Static("/media", cfg.MediaDir)
	}

	api := r.Group("/api")
	{
		// Course
		if cfg.CourseHandler != nil {
			api.POST("/courses", cfg.CourseHandler.CreateCourse)
			api.GET("/courses/:id", cfg.CourseHandler.GetCourse)
		}

		// Pipeline stages
		if p := cfg.PipelineHandler; p != nil {
			api.POST("/courses/:id/prompt", p.BuildPrompt)
			api.POST("/courses/:id/dialogue", p.GenerateDialogue)
			api.PUT("/courses/:id/exchanges/:order", p.UpdateExchange)
			api.POST("/courses/:id/script-config", p.BuildScriptConfig)
			api.PATCH("/courses/:id/script-config", p.UpdateScriptConfig)
			api.POST("/courses/:id/script-config/reset", p.ResetScriptConfig)
			api.POST("/courses/:id/script", p.GenerateScript)
			api.POST("/courses/:id/audio", p.GenerateAudio)
			api.POST("/courses/:id/audio/retry", p.RetryAudio)
			api.GET("/courses/:id/stages/:stage", p.GetSnapshot)
		}

		// Job
		if cfg.JobHandler != nil {
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}

		// Line renderings
		if cfg.LineHandler != nil {
			api.POST("/courses/:id/lines", cfg.LineHandler.SynthesizeLine)
			api.GET("/courses/:id/lines", cfg.LineHandler.ListLines)
			api.DELETE("/lines/:id", cfg.LineHandler.DeleteLine)
		}
	}

	return r
}
