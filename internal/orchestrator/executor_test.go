package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	types "github.com/yungbote/conductor-backend/internal/domain"
)

func TestExecutorCommandsPerStage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)

	task := h.seedEligible(t, "Title only", nil, time.Now().UTC())
	container := Container{ID: 1, Port: 8081, Worktree: "/worktrees/task-1"}

	cases := []struct {
		stage       types.Stage
		wantArgs    string
		wantPrompt  string
		wantContext string
	}{
		{types.StageSpecification, "--command /create-spec", "Title only", "specification"},
		{types.StageImplementation, "", "Based on this specification:\n\n\n\nImplement the solution.", "implementation"},
		{types.StageReviewQa, "--command /review --with-tests", "Review the implementation and add tests to ensure it works correctly.", ""},
	}

	for _, tc := range cases {
		res, err := h.svc.executor.Execute(ctx, task, tc.stage, container)
		if err != nil {
			t.Fatalf("Execute(%s): %v", tc.stage, err)
		}
		if !strings.HasPrefix(res.Command, "npx -y @anthropic-ai/claude-code@latest") {
			t.Fatalf("Execute(%s): command = %q", tc.stage, res.Command)
		}
		if tc.wantArgs != "" && !strings.Contains(res.Command, tc.wantArgs) {
			t.Fatalf("Execute(%s): command %q missing %q", tc.stage, res.Command, tc.wantArgs)
		}
		if tc.wantArgs == "" && strings.Contains(res.Command, "--command") {
			t.Fatalf("Execute(%s): unexpected directive in %q", tc.stage, res.Command)
		}
		if res.ContextKey != tc.wantContext {
			t.Fatalf("Execute(%s): context key = %q, want %q", tc.stage, res.ContextKey, tc.wantContext)
		}
	}

	calls := h.runner.Calls()
	if len(calls) != len(cases) {
		t.Fatalf("runner calls = %d, want %d", len(calls), len(cases))
	}
	for i, tc := range cases {
		if calls[i].Prompt != tc.wantPrompt {
			t.Fatalf("prompt for %s = %q, want %q", tc.stage, calls[i].Prompt, tc.wantPrompt)
		}
		if calls[i].Workdir != container.Worktree {
			t.Fatalf("workdir for %s = %q", tc.stage, calls[i].Workdir)
		}
	}

	// One attempt row per execution, stamped with the profile and workspace.
	attempts, err := h.attempts.ListByTask(dbc(ctx), task.ID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(attempts) != len(cases) {
		t.Fatalf("attempts = %d, want %d", len(attempts), len(cases))
	}
	if attempts[0].Executor != "claude-code" || attempts[0].ContainerRef != container.Worktree {
		t.Fatalf("unexpected attempt row: %+v", attempts[0])
	}
}

func TestExecutorImplementationPromptUsesStoredSpec(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)

	task := h.seedEligible(t, "X", nil, time.Now().UTC())
	if _, err := h.outputs.CreateOrReplace(dbc(ctx), task.ID, types.StageSpecification, "cmd", "THE SPEC", true); err != nil {
		t.Fatalf("seed spec output: %v", err)
	}

	_, err := h.svc.executor.Execute(ctx, task, types.StageImplementation, Container{ID: 1, Worktree: "/worktrees/task-1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	calls := h.runner.Calls()
	want := "Based on this specification:\n\nTHE SPEC\n\nImplement the solution."
	if calls[0].Prompt != want {
		t.Fatalf("prompt = %q, want %q", calls[0].Prompt, want)
	}
}

func TestExecutorCommitMergesContext(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)

	task := h.seedEligible(t, "X", nil, time.Now().UTC())
	task.Context = datatypes.JSON([]byte(`{"specification":"SPEC"}`))

	res := &StageResult{
		Stage:      types.StageImplementation,
		Command:    "cmd",
		Output:     "IMPL",
		Success:    true,
		ContextKey: "implementation",
	}
	if err := h.svc.executor.Commit(dbc(ctx), task, res); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := h.reload(t, task.ID)
	var blob map[string]string
	if err := json.Unmarshal(got.Context, &blob); err != nil {
		t.Fatalf("decode context: %v", err)
	}
	if blob["specification"] != "SPEC" || blob["implementation"] != "IMPL" {
		t.Fatalf("context = %v", blob)
	}

	out, err := h.outputs.FindByTaskAndStage(dbc(ctx), task.ID, types.StageImplementation)
	if err != nil || out == nil {
		t.Fatalf("FindByTaskAndStage: out=%v err=%v", out, err)
	}
}

func TestExecutorCommitToleratesMalformedContext(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)

	task := h.seedEligible(t, "X", nil, time.Now().UTC())
	task.Context = datatypes.JSON([]byte(`{not json`))

	res := &StageResult{
		Stage:      types.StageSpecification,
		Command:    "cmd",
		Output:     "SPEC",
		Success:    true,
		ContextKey: "specification",
	}
	if err := h.svc.executor.Commit(dbc(ctx), task, res); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := h.reload(t, task.ID)
	var blob map[string]string
	if err := json.Unmarshal(got.Context, &blob); err != nil {
		t.Fatalf("decode context: %v", err)
	}
	if blob["specification"] != "SPEC" {
		t.Fatalf("context = %v", blob)
	}
}
