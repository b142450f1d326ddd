package tasks

import (
	"time"

	"github.com/google/uuid"
)

// StageOutput records a single stage execution for a single task: the literal
// command line, the captured stdout, and whether the agent exited zero.
// At most one row exists per (task, stage); re-execution overwrites in place
// and refreshes CreatedAt.
type StageOutput struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TaskID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_stage_outputs_task_stage;index" json:"task_id"`
	Stage       Stage     `gorm:"column:stage;not null;uniqueIndex:idx_stage_outputs_task_stage" json:"stage"`
	CommandUsed *string   `gorm:"column:command_used" json:"command_used,omitempty"`
	Output      *string   `gorm:"column:output" json:"output,omitempty"`
	Success     bool      `gorm:"column:success;not null" json:"success"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (StageOutput) TableName() string { return "orchestrator_stage_outputs" }
