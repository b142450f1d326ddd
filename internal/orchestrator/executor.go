package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/yungbote/conductor-backend/internal/data/repos/tasks"
	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
)

// AgentConfig describes the external agent CLI: the program, the args it is
// always launched with, and the profile name recorded on attempt rows.
type AgentConfig struct {
	Program  string
	BaseArgs []string
	Profile  string
}

// StageResult carries one stage execution back to the work loop: the literal
// command line, the captured stdout, the exit disposition, and the context key
// the output is merged under (empty for stages that only write the output row).
type StageResult struct {
	Stage      types.Stage
	Command    string
	Output     string
	Success    bool
	ContextKey string
}

// StageExecutor runs one (task, stage, container) triple: it builds the
// stage-specific command and prompt, records an attempt, invokes the runner in
// the container's workspace, and knows how to persist the result. Execution
// and persistence are split so the work loop can commit the output together
// with the stage transition in one transaction.
type StageExecutor struct {
	log      *logger.Logger
	runner   Runner
	tasks    repos.TaskRepo
	outputs  repos.StageOutputRepo
	attempts repos.TaskAttemptRepo
	agent    AgentConfig
}

func NewStageExecutor(baseLog *logger.Logger, runner Runner, taskRepo repos.TaskRepo, outputRepo repos.StageOutputRepo, attemptRepo repos.TaskAttemptRepo, agent AgentConfig) *StageExecutor {
	return &StageExecutor{
		log:      baseLog.With("component", "StageExecutor"),
		runner:   runner,
		tasks:    taskRepo,
		outputs:  outputRepo,
		attempts: attemptRepo,
		agent:    agent,
	}
}

// Execute runs the stage's agent invocation. A non-zero agent exit is a valid
// result (Success=false); an error return means the agent never ran and no
// output must be persisted.
func (e *StageExecutor) Execute(ctx context.Context, task *types.Task, stage types.Stage, container Container) (*StageResult, error) {
	args := e.argsFor(stage)
	command := strings.Join(append([]string{e.agent.Program}, args...), " ")

	prompt, err := e.promptFor(ctx, task, stage)
	if err != nil {
		return nil, err
	}

	if _, err := e.attempts.Create(dbctx.Context{Ctx: ctx}, &types.TaskAttempt{
		ID:           uuid.New(),
		TaskID:       task.ID,
		Stage:        stage,
		Executor:     e.agent.Profile,
		ContainerRef: container.Worktree,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	e.log.Info("Executing stage",
		"task_id", task.ID,
		"stage", stage,
		"container_id", container.ID,
		"command", command,
	)

	res, err := e.runner.Run(ctx, container.Worktree, e.agent.Program, args, prompt)
	if err != nil {
		return nil, err
	}

	return &StageResult{
		Stage:      stage,
		Command:    command,
		Output:     res.Stdout,
		Success:    res.Success,
		ContextKey: contextKeyFor(stage),
	}, nil
}

// Commit persists a stage result: the output row (upsert on task+stage) and,
// when the stage contributes a context key, the merged orchestrator context.
// Callers pass a transaction handle so the commit lands atomically with the
// stage transition.
func (e *StageExecutor) Commit(dbc dbctx.Context, task *types.Task, res *StageResult) error {
	if _, err := e.outputs.CreateOrReplace(dbc, task.ID, res.Stage, res.Command, res.Output, res.Success); err != nil {
		return fmt.Errorf("persist stage output: %w", err)
	}
	if res.ContextKey == "" {
		return nil
	}
	merged, err := mergeContext(task.Context, res.ContextKey, res.Output)
	if err != nil {
		return fmt.Errorf("merge context: %w", err)
	}
	if err := e.tasks.SetContext(dbc, task.ID, merged); err != nil {
		return fmt.Errorf("persist context: %w", err)
	}
	return nil
}

func (e *StageExecutor) argsFor(stage types.Stage) []string {
	args := append([]string{}, e.agent.BaseArgs...)
	switch stage {
	case types.StageSpecification:
		args = append(args, "--command", "/create-spec")
	case types.StageReviewQa:
		args = append(args, "--command", "/review", "--with-tests")
	}
	return args
}

func (e *StageExecutor) promptFor(ctx context.Context, task *types.Task, stage types.Stage) (string, error) {
	switch stage {
	case types.StageSpecification:
		if task.Description != nil && *task.Description != "" {
			return *task.Description, nil
		}
		return task.Title, nil
	case types.StageImplementation:
		spec, err := e.outputs.FindByTaskAndStage(dbctx.Context{Ctx: ctx}, task.ID, types.StageSpecification)
		if err != nil {
			return "", fmt.Errorf("load specification output: %w", err)
		}
		specText := ""
		if spec != nil && spec.Output != nil {
			specText = *spec.Output
		}
		return fmt.Sprintf("Based on this specification:\n\n%s\n\nImplement the solution.", specText), nil
	case types.StageReviewQa:
		return "Review the implementation and add tests to ensure it works correctly.", nil
	default:
		return "", fmt.Errorf("stage %q is not executable", stage)
	}
}

func contextKeyFor(stage types.Stage) string {
	switch stage {
	case types.StageSpecification:
		return "specification"
	case types.StageImplementation:
		return "implementation"
	default:
		return ""
	}
}

// mergeContext sets key=value in the stored context blob, preserving existing
// keys. A malformed blob is treated as empty rather than failing the stage.
func mergeContext(existing datatypes.JSON, key, value string) (datatypes.JSON, error) {
	merged := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &merged); err != nil {
			merged = map[string]any{}
		}
	}
	merged[key] = value
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
