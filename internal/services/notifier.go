package services

import (
	"context"
	"time"

	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
	"github.com/yungbote/conductor-backend/internal/realtime/bus"
)

// StageNotifier receives orchestrator lifecycle events. The work loop calls it
// best-effort: a failing sink must never affect stage execution.
type StageNotifier interface {
	StageStarted(task *types.Task, stage types.Stage, containerID int)
	StageCompleted(task *types.Task, stage types.Stage, success bool)
	StageFailed(task *types.Task, stage types.Stage, err error)
	TaskCompleted(task *types.Task)
}

type stageNotifier struct {
	log *logger.Logger
	bus bus.Bus
}

// NewStageNotifier builds the default notifier: structured log always, bus
// publish when one is wired (b may be nil).
func NewStageNotifier(baseLog *logger.Logger, b bus.Bus) StageNotifier {
	return &stageNotifier{
		log: baseLog.With("service", "StageNotifier"),
		bus: b,
	}
}

func (n *stageNotifier) StageStarted(task *types.Task, stage types.Stage, containerID int) {
	n.log.Info("Stage started", "task_id", task.ID, "title", task.Title, "stage", stage, "container_id", containerID)
	n.publish(bus.StageEvent{
		Event:  bus.EventStageStarted,
		TaskID: task.ID,
		Title:  task.Title,
		Stage:  string(stage),
		At:     time.Now().UTC(),
	})
}

func (n *stageNotifier) StageCompleted(task *types.Task, stage types.Stage, success bool) {
	n.log.Info("Stage completed", "task_id", task.ID, "stage", stage, "success", success)
	n.publish(bus.StageEvent{
		Event:   bus.EventStageCompleted,
		TaskID:  task.ID,
		Title:   task.Title,
		Stage:   string(stage),
		Success: &success,
		At:      time.Now().UTC(),
	})
}

func (n *stageNotifier) StageFailed(task *types.Task, stage types.Stage, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	n.log.Warn("Stage failed", "task_id", task.ID, "stage", stage, "error", err)
	n.publish(bus.StageEvent{
		Event:  bus.EventStageFailed,
		TaskID: task.ID,
		Title:  task.Title,
		Stage:  string(stage),
		Error:  msg,
		At:     time.Now().UTC(),
	})
}

func (n *stageNotifier) TaskCompleted(task *types.Task) {
	n.log.Info("Task completed", "task_id", task.ID, "title", task.Title)
	n.publish(bus.StageEvent{
		Event:  bus.EventTaskCompleted,
		TaskID: task.ID,
		Title:  task.Title,
		At:     time.Now().UTC(),
	})
}

func (n *stageNotifier) publish(ev bus.StageEvent) {
	if n.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("Stage event publish failed", "event", ev.Event, "task_id", ev.TaskID, "error", err)
	}
}
