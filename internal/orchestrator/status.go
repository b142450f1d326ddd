package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
)

type ActiveTask struct {
	TaskID      uuid.UUID   `json:"task_id"`
	TaskTitle   string      `json:"task_title"`
	Stage       types.Stage `json:"stage"`
	ContainerID int         `json:"container_id"`
	StartedAt   time.Time   `json:"started_at"`
}

type QueuedTask struct {
	TaskID    uuid.UUID `json:"task_id"`
	TaskTitle string    `json:"task_title"`
	CreatedAt time.Time `json:"created_at"`
}

type ContainerInfo struct {
	ID          int        `json:"id"`
	Port        int        `json:"port"`
	AllocatedTo *uuid.UUID `json:"allocated_to,omitempty"`
	Status      string     `json:"status"`
}

type Status struct {
	ActiveTasks []ActiveTask    `json:"active_tasks"`
	QueuedTasks []QueuedTask    `json:"queued_tasks"`
	Containers  []ContainerInfo `json:"containers"`
}

// TaskOutputs projects the stored stage outputs under the names the UI knows.
type TaskOutputs struct {
	Specification  *string `json:"specification"`
	Implementation *string `json:"implementation"`
	Review         *string `json:"review"`
}

type TaskWithOutputs struct {
	ID      uuid.UUID    `json:"id"`
	Title   string       `json:"title"`
	Stage   *types.Stage `json:"stage"`
	Outputs TaskOutputs  `json:"outputs"`
}

// Status reports the loop's observable state: executing tasks, the queue, and
// the container inventory annotated from the active tasks' persisted shadow.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	dbc := dbctx.Context{Ctx: ctx}

	active, err := s.tasks.ListActive(dbc)
	if err != nil {
		return nil, err
	}
	queued, err := s.tasks.ListEligible(dbc, 0)
	if err != nil {
		return nil, err
	}

	activeTasks := make([]ActiveTask, 0, len(active))
	allocatedBy := map[int]uuid.UUID{}
	for _, t := range active {
		containerID := 0
		if t.ContainerID != nil {
			containerID = *t.ContainerID
			allocatedBy[containerID] = t.ID
		}
		activeTasks = append(activeTasks, ActiveTask{
			TaskID:      t.ID,
			TaskTitle:   t.Title,
			Stage:       t.CurrentStage(),
			ContainerID: containerID,
			StartedAt:   t.UpdatedAt,
		})
	}

	queuedTasks := make([]QueuedTask, 0, len(queued))
	for _, t := range queued {
		queuedTasks = append(queuedTasks, QueuedTask{
			TaskID:    t.ID,
			TaskTitle: t.Title,
			CreatedAt: t.CreatedAt,
		})
	}

	containers := make([]ContainerInfo, 0, len(s.pool.Containers()))
	for _, c := range s.pool.Containers() {
		info := ContainerInfo{ID: c.ID, Port: c.Port, Status: "available"}
		if taskID, busy := allocatedBy[c.ID]; busy {
			id := taskID
			info.AllocatedTo = &id
			info.Status = "busy"
		}
		containers = append(containers, info)
	}

	return &Status{
		ActiveTasks: activeTasks,
		QueuedTasks: queuedTasks,
		Containers:  containers,
	}, nil
}

// ListTasksWithOutputs returns the newest staged tasks with their outputs
// keyed by stage name.
func (s *Service) ListTasksWithOutputs(ctx context.Context, limit int) ([]TaskWithOutputs, error) {
	dbc := dbctx.Context{Ctx: ctx}

	if limit <= 0 {
		limit = 50
	}
	recent, err := s.tasks.ListRecentWithStage(dbc, limit)
	if err != nil {
		return nil, err
	}

	out := make([]TaskWithOutputs, 0, len(recent))
	for _, t := range recent {
		outputs, err := s.outputs.ListByTask(dbc, t.ID)
		if err != nil {
			return nil, err
		}
		projected := TaskOutputs{}
		for _, o := range outputs {
			switch o.Stage {
			case types.StageSpecification:
				projected.Specification = o.Output
			case types.StageImplementation:
				projected.Implementation = o.Output
			case types.StageReviewQa:
				projected.Review = o.Output
			}
		}
		out = append(out, TaskWithOutputs{
			ID:      t.ID,
			Title:   t.Title,
			Stage:   t.Stage,
			Outputs: projected,
		})
	}
	return out, nil
}
