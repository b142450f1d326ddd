package app

import (
	httpX "github.com/yungbote/conductor-backend/internal/http"
	httpH "github.com/yungbote/conductor-backend/internal/http/handlers"
	httpMW "github.com/yungbote/conductor-backend/internal/http/middleware"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
)

func wireRouter(log *logger.Logger, cfg Config, serviceset Services) httpX.RouterConfig {
	routerCfg := httpX.RouterConfig{
		OrchestratorHandler: httpH.NewOrchestratorHandler(serviceset.Orchestrator),
		TaskHandler:         httpH.NewTaskHandler(serviceset.Tasks),
		HealthHandler:       httpH.NewHealthHandler(),
		ServiceName:         "conductor-backend",
	}
	if cfg.JWTSecret != "" {
		routerCfg.AuthMiddleware = httpMW.NewAuthMiddleware(log, cfg.JWTSecret)
	}
	return routerCfg
}
