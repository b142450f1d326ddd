package tasks

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
)

type TaskRepo interface {
	Create(dbc dbctx.Context, ts []*types.Task) ([]*types.Task, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Task, error)

	// ListEligible returns tasks the work loop may pick up fresh: todo status,
	// no stage or pending, no container bound. created_at ascending. limit <= 0
	// means no limit.
	ListEligible(dbc dbctx.Context, limit int) ([]*types.Task, error)

	// ListResumable returns tasks that must re-enter the loop at an executable
	// stage: either mid-pipeline with a container still bound (transitioned on a
	// previous tick), or rewound by a retry (todo status, binding cleared).
	ListResumable(dbc dbctx.Context, limit int) ([]*types.Task, error)

	// ListActive returns tasks with a bound container that have not completed.
	ListActive(dbc dbctx.Context) ([]*types.Task, error)

	ListRecentWithStage(dbc dbctx.Context, limit int) ([]*types.Task, error)

	SetStage(dbc dbctx.Context, id uuid.UUID, stage types.Stage) error
	SetStatus(dbc dbctx.Context, id uuid.UUID, status types.TaskStatus) error
	BindContainer(dbc dbctx.Context, id uuid.UUID, containerID *int) error
	SetContext(dbc dbctx.Context, id uuid.UUID, blob datatypes.JSON) error

	// ClearStaleBindings nulls the persisted container shadow for every task
	// whose binding cannot correspond to a live allocation. Run at startup,
	// before the pool hands out anything.
	ClearStaleBindings(dbc dbctx.Context) (int64, error)
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{
		db:  db,
		log: baseLog.With("repo", "TaskRepo"),
	}
}

func (r *taskRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *taskRepo) Create(dbc dbctx.Context, ts []*types.Task) ([]*types.Task, error) {
	if len(ts) == 0 {
		return []*types.Task{}, nil
	}
	if err := r.handle(dbc).Create(&ts).Error; err != nil {
		return nil, err
	}
	return ts, nil
}

func (r *taskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Task, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var task types.Task
	err := r.handle(dbc).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) ListEligible(dbc dbctx.Context, limit int) ([]*types.Task, error) {
	var out []*types.Task
	q := r.handle(dbc).
		Where("status = ?", types.StatusTodo).
		Where("orchestrator_stage IS NULL OR orchestrator_stage = ?", types.StagePending).
		Where("container_id IS NULL").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskRepo) ListResumable(dbc dbctx.Context, limit int) ([]*types.Task, error) {
	var out []*types.Task
	executable := stageStrings(types.ExecutableStages)
	q := r.handle(dbc).
		Where("orchestrator_stage IN ?", executable).
		Where("container_id IS NOT NULL OR (status = ? AND container_id IS NULL)", types.StatusTodo).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskRepo) ListActive(dbc dbctx.Context) ([]*types.Task, error) {
	var out []*types.Task
	err := r.handle(dbc).
		Where("container_id IS NOT NULL").
		Where("orchestrator_stage IS NOT NULL AND orchestrator_stage <> ?", types.StageCompleted).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskRepo) ListRecentWithStage(dbc dbctx.Context, limit int) ([]*types.Task, error) {
	var out []*types.Task
	q := r.handle(dbc).
		Where("orchestrator_stage IS NOT NULL").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskRepo) SetStage(dbc dbctx.Context, id uuid.UUID, stage types.Stage) error {
	return r.updateFields(dbc, id, map[string]interface{}{"orchestrator_stage": stage})
}

func (r *taskRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status types.TaskStatus) error {
	return r.updateFields(dbc, id, map[string]interface{}{"status": status})
}

func (r *taskRepo) BindContainer(dbc dbctx.Context, id uuid.UUID, containerID *int) error {
	return r.updateFields(dbc, id, map[string]interface{}{"container_id": containerID})
}

func (r *taskRepo) SetContext(dbc dbctx.Context, id uuid.UUID, blob datatypes.JSON) error {
	return r.updateFields(dbc, id, map[string]interface{}{"orchestrator_context": blob})
}

func (r *taskRepo) updateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.handle(dbc).
		Model(&types.Task{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *taskRepo) ClearStaleBindings(dbc dbctx.Context) (int64, error) {
	res := r.handle(dbc).
		Model(&types.Task{}).
		Where("container_id IS NOT NULL").
		Where("status = ? OR orchestrator_stage IN ?", types.StatusTodo, stageStrings(types.ExecutableStages)).
		Updates(map[string]interface{}{
			"container_id": nil,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func stageStrings(stages []types.Stage) []string {
	out := make([]string, 0, len(stages))
	for _, s := range stages {
		out = append(out, string(s))
	}
	return out
}
