package app

import (
	"gorm.io/gorm"

	repos "github.com/yungbote/conductor-backend/internal/data/repos/tasks"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
)

type Repos struct {
	Tasks    repos.TaskRepo
	Outputs  repos.StageOutputRepo
	Attempts repos.TaskAttemptRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Tasks:    repos.NewTaskRepo(db, log),
		Outputs:  repos.NewStageOutputRepo(db, log),
		Attempts: repos.NewTaskAttemptRepo(db, log),
	}
}
