package tasks

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
)

type TaskAttemptRepo interface {
	Create(dbc dbctx.Context, attempt *types.TaskAttempt) (*types.TaskAttempt, error)
	ListByTask(dbc dbctx.Context, taskID uuid.UUID) ([]*types.TaskAttempt, error)
}

type taskAttemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskAttemptRepo(db *gorm.DB, baseLog *logger.Logger) TaskAttemptRepo {
	return &taskAttemptRepo{
		db:  db,
		log: baseLog.With("repo", "TaskAttemptRepo"),
	}
}

func (r *taskAttemptRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *taskAttemptRepo) Create(dbc dbctx.Context, attempt *types.TaskAttempt) (*types.TaskAttempt, error) {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if err := r.handle(dbc).Create(attempt).Error; err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *taskAttemptRepo) ListByTask(dbc dbctx.Context, taskID uuid.UUID) ([]*types.TaskAttempt, error) {
	var out []*types.TaskAttempt
	err := r.handle(dbc).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
