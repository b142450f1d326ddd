package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	repos "github.com/yungbote/conductor-backend/internal/data/repos/tasks"
	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
)

var ErrTitleRequired = errors.New("title is required")

// TaskService is the intake door: tasks enter the store here and the work loop
// picks them up on its next tick. New tasks start todo with no stage.
type TaskService interface {
	Create(ctx context.Context, projectID uuid.UUID, title, description string) (*types.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*types.Task, error)
}

type taskService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.TaskRepo
}

func NewTaskService(db *gorm.DB, baseLog *logger.Logger, repo repos.TaskRepo) TaskService {
	return &taskService{
		db:   db,
		log:  baseLog.With("service", "TaskService"),
		repo: repo,
	}
}

func (s *taskService) Create(ctx context.Context, projectID uuid.UUID, title, description string) (*types.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if projectID == uuid.Nil {
		projectID = uuid.New()
	}

	now := time.Now().UTC()
	task := &types.Task{
		ID:        uuid.New(),
		ProjectID: projectID,
		Title:     title,
		Status:    types.StatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if description = strings.TrimSpace(description); description != "" {
		task.Description = &description
	}

	created, err := s.repo.Create(dbctx.Context{Ctx: ctx}, []*types.Task{task})
	if err != nil {
		return nil, err
	}
	s.log.Info("Task created", "task_id", task.ID, "title", task.Title)
	return created[0], nil
}

func (s *taskService) GetByID(ctx context.Context, id uuid.UUID) (*types.Task, error) {
	return s.repo.GetByID(dbctx.Context{Ctx: ctx}, id)
}
