package app

import (
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/conductor-backend/internal/orchestrator"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
	"github.com/yungbote/conductor-backend/internal/realtime/bus"
	"github.com/yungbote/conductor-backend/internal/services"
)

type Services struct {
	Tasks        services.TaskService
	Notifier     services.StageNotifier
	Bus          bus.Bus
	Orchestrator *orchestrator.Service
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (Services, error) {
	var stageBus bus.Bus
	if os.Getenv("REDIS_ADDR") != "" {
		b, err := bus.NewRedisBus(log)
		if err != nil {
			return Services{}, err
		}
		stageBus = b
	}

	notifier := services.NewStageNotifier(log, stageBus)

	pool := orchestrator.NewContainerPool(cfg.Containers)
	runner := orchestrator.NewExecRunner(log, cfg.StdoutCap)
	executor := orchestrator.NewStageExecutor(log, runner, reposet.Tasks, reposet.Outputs, reposet.Attempts, orchestrator.AgentConfig{
		Program:  cfg.AgentProgram,
		BaseArgs: cfg.AgentBaseArgs,
		Profile:  cfg.AgentProfile,
	})
	orch := orchestrator.NewService(db, log, reposet.Tasks, reposet.Outputs, pool, executor, notifier, orchestrator.Config{
		PollInterval:  cfg.PollInterval,
		MaxConcurrent: cfg.MaxConcurrent,
	})

	return Services{
		Tasks:        services.NewTaskService(db, log, reposet.Tasks),
		Notifier:     notifier,
		Bus:          stageBus,
		Orchestrator: orch,
	}, nil
}
