package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	repos "github.com/yungbote/conductor-backend/internal/data/repos/tasks"
	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
	"github.com/yungbote/conductor-backend/internal/services"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskBusy rejects a retry while the task's stage is executing; a rewind
	// under a live worker would race the worker's own commit.
	ErrTaskBusy = errors.New("task is currently executing a stage")
)

type Config struct {
	PollInterval  time.Duration
	MaxConcurrent int
}

/*
Service is the work loop: the periodic driver that discovers runnable tasks,
binds each to a container, runs exactly one stage transition per dispatch, and
commits the stage output atomically with the state advance.

Scheduling:
  - Run() ticks every PollInterval and fans out up to MaxConcurrent workers.
  - A worker executes ONE stage and returns; multi-stage progress happens
    across ticks, with the container binding carrying the workspace between
    stages.
  - The in-memory inflight set guarantees a task is never dispatched twice
    concurrently, even though mid-pipeline tasks stay visible to the
    runnable queries between ticks.

Failure policy:
  - Store errors and spawn errors are logged and swallowed; the task stays at
    its current stage and is retried on a later tick.
  - A non-zero agent exit is persisted (success=false) and the stage still
    advances. Operators rewind with Retry when that outcome is wrong.
*/
type Service struct {
	db       *gorm.DB
	log      *logger.Logger
	tasks    repos.TaskRepo
	outputs  repos.StageOutputRepo
	pool     *ContainerPool
	executor *StageExecutor
	notify   services.StageNotifier
	cfg      Config

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	wg       sync.WaitGroup
}

func NewService(db *gorm.DB, baseLog *logger.Logger, taskRepo repos.TaskRepo, outputRepo repos.StageOutputRepo, pool *ContainerPool, executor *StageExecutor, notify services.StageNotifier, cfg Config) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	return &Service{
		db:       db,
		log:      baseLog.With("component", "Orchestrator"),
		tasks:    taskRepo,
		outputs:  outputRepo,
		pool:     pool,
		executor: executor,
		notify:   notify,
		cfg:      cfg,
		inflight: map[uuid.UUID]struct{}{},
	}
}

// ReconcileContainerBindings repairs the persisted container shadow after a
// crash: the in-memory allocation map restarts empty, so any surviving
// tasks.container_id that is not completed-terminal is stale. Must run before
// the loop starts handing out containers.
func (s *Service) ReconcileContainerBindings(ctx context.Context) error {
	cleared, err := s.tasks.ClearStaleBindings(dbctx.Context{Ctx: ctx})
	if err != nil {
		return fmt.Errorf("clear stale bindings: %w", err)
	}
	if cleared > 0 {
		s.log.Warn("Cleared stale container bindings from previous run", "count", cleared)
	}
	return nil
}

// Run drives the loop until ctx is cancelled, then waits for in-flight
// workers to finish their current stage.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("Starting orchestrator loop",
		"poll_interval", s.cfg.PollInterval,
		"max_concurrent", s.cfg.MaxConcurrent,
		"containers", len(s.pool.Containers()),
	)

	if err := s.ReconcileContainerBindings(ctx); err != nil {
		s.log.Error("Startup binding reconcile failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Orchestrator loop stopping; waiting for in-flight stages")
			s.wg.Wait()
			s.log.Info("Orchestrator loop stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick discovers runnable tasks and dispatches workers, bounded by
// MaxConcurrent across dispatched-and-still-running work. Mid-pipeline tasks
// (container bound, or rewound by retry) are preferred over fresh ones so a
// started pipeline drains before new work is admitted.
func (s *Service) tick(ctx context.Context) {
	budget := s.budget()
	if budget <= 0 {
		return
	}
	dbc := dbctx.Context{Ctx: ctx}

	resumable, err := s.tasks.ListResumable(dbc, budget)
	if err != nil {
		s.log.Error("Runnable query failed", "error", err)
		return
	}
	eligible, err := s.tasks.ListEligible(dbc, budget)
	if err != nil {
		s.log.Error("Eligibility query failed", "error", err)
		return
	}

	dispatched := 0
	for _, task := range append(resumable, eligible...) {
		if dispatched >= budget {
			break
		}
		if !s.beginInflight(task.ID) {
			continue
		}
		dispatched++
		s.wg.Add(1)
		go s.runWorker(ctx, task)
	}
}

func (s *Service) runWorker(ctx context.Context, task *types.Task) {
	defer s.wg.Done()
	defer s.endInflight(task.ID)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Stage worker panic", "task_id", task.ID, "panic", r)
		}
	}()

	if err := s.processTask(ctx, task); err != nil {
		s.log.Error("Error processing task", "task_id", task.ID, "title", task.Title, "error", err)
	}
}

// processTask executes exactly one stage transition for the task.
func (s *Service) processTask(ctx context.Context, task *types.Task) error {
	dbc := dbctx.Context{Ctx: ctx}

	container, ok := s.pool.Allocate(task.ID)
	if !ok {
		s.log.Info("No containers available", "task_id", task.ID)
		return nil
	}

	// Shadow write for inspection; the pool map stays authoritative.
	if err := s.tasks.BindContainer(dbc, task.ID, &container.ID); err != nil {
		s.pool.Release(task.ID)
		return fmt.Errorf("bind container: %w", err)
	}

	stage := task.CurrentStage()
	s.log.Info("Processing task", "task_id", task.ID, "title", task.Title, "stage", stage, "container_id", container.ID)

	switch stage {
	case types.StagePending:
		// Entry transition only; the agent runs when the next tick picks the
		// task up at specification via the resumable query.
		err := s.db.Transaction(func(tx *gorm.DB) error {
			txc := dbctx.Context{Ctx: ctx, Tx: tx}
			if err := s.tasks.SetStage(txc, task.ID, types.StageSpecification); err != nil {
				return err
			}
			return s.tasks.SetStatus(txc, task.ID, types.StatusInProgress)
		})
		if err != nil {
			// Undo the binding so the eligibility query picks the task up again.
			_ = s.tasks.BindContainer(dbc, task.ID, nil)
			s.pool.Release(task.ID)
			return fmt.Errorf("enter specification: %w", err)
		}
		return nil

	case types.StageSpecification, types.StageImplementation, types.StageReviewQa:
		return s.executeStage(ctx, task, stage, container)

	case types.StageCompleted:
		return s.finishTask(ctx, task)

	default:
		return fmt.Errorf("task %s in unknown stage %q", task.ID, stage)
	}
}

func (s *Service) executeStage(ctx context.Context, task *types.Task, stage types.Stage, container Container) error {
	dbc := dbctx.Context{Ctx: ctx}

	// A retried task re-enters with status todo; flip it before executing.
	if task.Status != types.StatusInProgress {
		if err := s.tasks.SetStatus(dbc, task.ID, types.StatusInProgress); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
	}

	s.notify.StageStarted(task, stage, container.ID)

	res, err := s.executor.Execute(ctx, task, stage, container)
	if err != nil {
		// Spawn/store failure: nothing ran, so no output row is written. The
		// task keeps its stage and binding; the next tick retries the stage.
		s.notify.StageFailed(task, stage, err)
		return fmt.Errorf("execute %s: %w", stage, err)
	}

	next := stage.Next()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.executor.Commit(txc, task, res); err != nil {
			return err
		}
		if err := s.tasks.SetStage(txc, task.ID, next); err != nil {
			return err
		}
		if next == types.StageCompleted {
			return s.tasks.SetStatus(txc, task.ID, types.StatusDone)
		}
		return nil
	})
	if err != nil {
		s.notify.StageFailed(task, stage, err)
		return fmt.Errorf("commit %s: %w", stage, err)
	}

	s.notify.StageCompleted(task, stage, res.Success)

	if next == types.StageCompleted {
		return s.finishTask(ctx, task)
	}
	return nil
}

// finishTask tears down a completed task's binding: shadow cleared first,
// then the lease, per the pool's write-after/clear-before contract.
func (s *Service) finishTask(ctx context.Context, task *types.Task) error {
	if err := s.tasks.BindContainer(dbctx.Context{Ctx: ctx}, task.ID, nil); err != nil {
		return fmt.Errorf("clear container binding: %w", err)
	}
	s.pool.Release(task.ID)
	s.notify.TaskCompleted(task)
	return nil
}

// Retry rewinds a task to fromStage (default: its current stage, pending when
// it has none), deletes the invalidated downstream outputs, and forces
// re-entry through the work loop. Rejected while the task is mid-execution.
func (s *Service) Retry(ctx context.Context, taskID uuid.UUID, fromStage *types.Stage) error {
	dbc := dbctx.Context{Ctx: ctx}

	task, err := s.tasks.GetByID(dbc, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return ErrTaskNotFound
	}

	if s.isInflight(taskID) {
		return ErrTaskBusy
	}
	if _, held := s.pool.Peek(taskID); held {
		return ErrTaskBusy
	}

	from := task.CurrentStage()
	if fromStage != nil {
		from = *fromStage
	}
	if !from.Valid() {
		return fmt.Errorf("invalid stage %q", from)
	}

	s.log.Info("Retrying task", "task_id", taskID, "from_stage", from)

	return s.db.Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.tasks.SetStage(txc, taskID, from); err != nil {
			return err
		}
		if err := s.tasks.SetStatus(txc, taskID, types.StatusTodo); err != nil {
			return err
		}
		if err := s.tasks.BindContainer(txc, taskID, nil); err != nil {
			return err
		}
		return s.outputs.DeleteFrom(txc, taskID, from)
	})
}

func (s *Service) budget() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MaxConcurrent - len(s.inflight)
}

func (s *Service) beginInflight(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) endInflight(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *Service) isInflight(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}
