package tasks

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
)

type StageOutputRepo interface {
	// CreateOrReplace upserts on (task_id, stage). On conflict it overwrites
	// command, output and success, and refreshes created_at to the current wall
	// clock; the row id is stable across overwrites.
	CreateOrReplace(dbc dbctx.Context, taskID uuid.UUID, stage types.Stage, commandUsed, output string, success bool) (*types.StageOutput, error)

	FindByTaskAndStage(dbc dbctx.Context, taskID uuid.UUID, stage types.Stage) (*types.StageOutput, error)

	// ListByTask returns all outputs for a task, created_at ascending.
	ListByTask(dbc dbctx.Context, taskID uuid.UUID) ([]*types.StageOutput, error)

	// DeleteFrom removes the outputs a rewind to `from` invalidates: the stage
	// itself and everything downstream.
	DeleteFrom(dbc dbctx.Context, taskID uuid.UUID, from types.Stage) error
}

type stageOutputRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageOutputRepo(db *gorm.DB, baseLog *logger.Logger) StageOutputRepo {
	return &stageOutputRepo{
		db:  db,
		log: baseLog.With("repo", "StageOutputRepo"),
	}
}

func (r *stageOutputRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *stageOutputRepo) CreateOrReplace(dbc dbctx.Context, taskID uuid.UUID, stage types.Stage, commandUsed, output string, success bool) (*types.StageOutput, error) {
	now := time.Now().UTC()
	row := &types.StageOutput{
		ID:          uuid.New(),
		TaskID:      taskID,
		Stage:       stage,
		CommandUsed: &commandUsed,
		Output:      &output,
		Success:     success,
		CreatedAt:   now,
	}
	err := r.handle(dbc).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "task_id"}, {Name: "stage"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"command_used": commandUsed,
				"output":       output,
				"success":      success,
				"created_at":   now,
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	// On conflict the insert id is discarded; re-read so callers see the stored row.
	return r.FindByTaskAndStage(dbc, taskID, stage)
}

func (r *stageOutputRepo) FindByTaskAndStage(dbc dbctx.Context, taskID uuid.UUID, stage types.Stage) (*types.StageOutput, error) {
	var row types.StageOutput
	err := r.handle(dbc).
		Where("task_id = ? AND stage = ?", taskID, stage).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *stageOutputRepo) ListByTask(dbc dbctx.Context, taskID uuid.UUID) ([]*types.StageOutput, error) {
	var out []*types.StageOutput
	err := r.handle(dbc).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stageOutputRepo) DeleteFrom(dbc dbctx.Context, taskID uuid.UUID, from types.Stage) error {
	invalidated := types.InvalidatedBy(from)
	if len(invalidated) == 0 {
		return nil
	}
	return r.handle(dbc).
		Where("task_id = ? AND stage IN ?", taskID, stageStrings(invalidated)).
		Delete(&types.StageOutput{}).Error
}
