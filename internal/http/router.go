package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/conductor-backend/internal/http/handlers"
	httpMW "github.com/yungbote/conductor-backend/internal/http/middleware"
)

type RouterConfig struct {
	OrchestratorHandler *httpH.OrchestratorHandler
	TaskHandler         *httpH.TaskHandler
	HealthHandler       *httpH.HealthHandler

	AuthMiddleware *httpMW.AuthMiddleware
	ServiceName    string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "conductor-backend"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.TaskHandler != nil {
			api.POST("/tasks", cfg.TaskHandler.CreateTask)
			api.GET("/tasks/:id", cfg.TaskHandler.GetTask)
		}

		if cfg.OrchestratorHandler != nil {
			api.GET("/orchestrator/status", cfg.OrchestratorHandler.GetStatus)
			api.GET("/orchestrator/tasks", cfg.OrchestratorHandler.GetTasks)
			api.POST("/orchestrator/retry/:task_id", cfg.OrchestratorHandler.RetryTask)
		}
	}

	return r
}
