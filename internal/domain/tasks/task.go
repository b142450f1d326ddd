package tasks

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Task is a unit of work flowing through the stage pipeline.
//
// ContainerID is a persisted shadow of the in-memory pool allocation, kept for
// inspection and crash recovery. The pool's map is authoritative while the
// process lives; on restart the shadow is reconciled against the (empty) map.
type Task struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Title             string         `gorm:"not null" json:"title"`
	Description       *string        `gorm:"column:description" json:"description,omitempty"`
	Status            TaskStatus     `gorm:"column:status;not null;index" json:"status"`
	ParentTaskAttempt *uuid.UUID     `gorm:"type:uuid;column:parent_task_attempt" json:"parent_task_attempt,omitempty"`
	Stage             *Stage         `gorm:"column:orchestrator_stage;index" json:"orchestrator_stage,omitempty"`
	Context           datatypes.JSON `gorm:"column:orchestrator_context" json:"orchestrator_context,omitempty"`
	ContainerID       *int           `gorm:"column:container_id;index" json:"container_id,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

// CurrentStage resolves the nullable stage column; tasks created externally
// start with no stage, which the work loop treats as pending.
func (t *Task) CurrentStage() Stage {
	if t.Stage == nil {
		return StagePending
	}
	return *t.Stage
}
