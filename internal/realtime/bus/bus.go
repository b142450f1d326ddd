package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFailed    = "stage_failed"
	EventTaskCompleted  = "task_completed"
)

// StageEvent is the structured event the orchestrator emits at stage
// boundaries. The core only produces these; transport is the bus's problem.
type StageEvent struct {
	Event   string    `json:"event"`
	TaskID  uuid.UUID `json:"task_id"`
	Title   string    `json:"title"`
	Stage   string    `json:"stage,omitempty"`
	Success *bool     `json:"success,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, ev StageEvent) error
	Close() error
}
