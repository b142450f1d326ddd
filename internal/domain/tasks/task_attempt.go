package tasks

import (
	"time"

	"github.com/google/uuid"
)

// TaskAttempt is an audit row written before every stage execution: which
// executor ran, in which workspace. Attempts are append-only; outputs overwrite
// but attempts accumulate, so a retried stage leaves a visible trail.
type TaskAttempt struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TaskID       uuid.UUID `gorm:"type:uuid;not null;index" json:"task_id"`
	Stage        Stage     `gorm:"column:stage;not null" json:"stage"`
	Executor     string    `gorm:"column:executor;not null" json:"executor"`
	ContainerRef string    `gorm:"column:container_ref" json:"container_ref,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
}

func (TaskAttempt) TableName() string { return "orchestrator_task_attempts" }
