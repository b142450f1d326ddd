package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/conductor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
)

func TestTaskRepoEligibility(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewTaskRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	now := time.Now().UTC()

	// Eligible: todo, no stage, no container. Seeded out of order to check
	// created_at ASC.
	second := testutil.SeedTask(t, ctx, tx, "second")
	first := testutil.SeedTask(t, ctx, tx, "first")
	if err := tx.Model(&types.Task{}).Where("id = ?", second.ID).Update("created_at", now.Add(-1*time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if err := tx.Model(&types.Task{}).Where("id = ?", first.ID).Update("created_at", now.Add(-2*time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	// Eligible: todo + explicit pending stage.
	pending := types.StagePending
	pendingTask := testutil.SeedTask(t, ctx, tx, "pending")
	if err := tx.Model(&types.Task{}).Where("id = ?", pendingTask.ID).Update("orchestrator_stage", pending).Error; err != nil {
		t.Fatalf("set pending: %v", err)
	}

	// Not eligible: bound to a container.
	one := 1
	testutil.SeedTaskAtStage(t, ctx, tx, "bound", types.StageSpecification, &one)

	// Not eligible: done.
	testutil.SeedTaskAtStage(t, ctx, tx, "done", types.StageCompleted, nil)

	eligible, err := repo.ListEligible(dbc, 0)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	if len(eligible) != 3 {
		t.Fatalf("ListEligible: len=%d want 3", len(eligible))
	}
	if eligible[0].ID != first.ID || eligible[1].ID != second.ID {
		t.Fatalf("ListEligible: wrong order")
	}

	limited, err := repo.ListEligible(dbc, 2)
	if err != nil {
		t.Fatalf("ListEligible limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("ListEligible limited: len=%d want 2", len(limited))
	}
}

func TestTaskRepoResumable(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewTaskRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	one := 1
	bound := testutil.SeedTaskAtStage(t, ctx, tx, "bound", types.StageImplementation, &one)

	// Rewound by retry: executable stage, todo, no container.
	retried := testutil.SeedTaskAtStage(t, ctx, tx, "retried", types.StageReviewQa, nil)
	if err := tx.Model(&types.Task{}).Where("id = ?", retried.ID).Update("status", types.StatusTodo).Error; err != nil {
		t.Fatalf("rewind: %v", err)
	}

	// Neither: completed, and fresh with no stage.
	testutil.SeedTaskAtStage(t, ctx, tx, "done", types.StageCompleted, nil)
	testutil.SeedTask(t, ctx, tx, "fresh")

	resumable, err := repo.ListResumable(dbc, 0)
	if err != nil {
		t.Fatalf("ListResumable: %v", err)
	}
	if len(resumable) != 2 {
		t.Fatalf("ListResumable: len=%d want 2", len(resumable))
	}
	ids := map[uuid.UUID]bool{resumable[0].ID: true, resumable[1].ID: true}
	if !ids[bound.ID] || !ids[retried.ID] {
		t.Fatalf("ListResumable: wrong set")
	}
}

func TestTaskRepoActiveAndRecent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewTaskRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	one := 1
	two := 2
	active := testutil.SeedTaskAtStage(t, ctx, tx, "active", types.StageSpecification, &one)
	testutil.SeedTaskAtStage(t, ctx, tx, "done-bound", types.StageCompleted, &two)
	testutil.SeedTask(t, ctx, tx, "fresh")

	got, err := repo.ListActive(dbc)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Fatalf("ListActive: expected only the executing task")
	}

	recent, err := repo.ListRecentWithStage(dbc, 50)
	if err != nil {
		t.Fatalf("ListRecentWithStage: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("ListRecentWithStage: len=%d want 2", len(recent))
	}
}

func TestTaskRepoSetters(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewTaskRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	task := testutil.SeedTask(t, ctx, tx, "X")

	if err := repo.SetStage(dbc, task.ID, types.StageSpecification); err != nil {
		t.Fatalf("SetStage: %v", err)
	}
	if err := repo.SetStatus(dbc, task.ID, types.StatusInProgress); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	three := 3
	if err := repo.BindContainer(dbc, task.ID, &three); err != nil {
		t.Fatalf("BindContainer: %v", err)
	}
	if err := repo.SetContext(dbc, task.ID, datatypes.JSON([]byte(`{"specification":"S"}`))); err != nil {
		t.Fatalf("SetContext: %v", err)
	}

	got, err := repo.GetByID(dbc, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.CurrentStage() != types.StageSpecification || got.Status != types.StatusInProgress {
		t.Fatalf("unexpected task state: %+v", got)
	}
	if got.ContainerID == nil || *got.ContainerID != 3 {
		t.Fatalf("container binding not persisted")
	}

	if err := repo.BindContainer(dbc, task.ID, nil); err != nil {
		t.Fatalf("BindContainer(nil): %v", err)
	}
	got, _ = repo.GetByID(dbc, task.ID)
	if got.ContainerID != nil {
		t.Fatalf("container binding not cleared")
	}

	if missing, err := repo.GetByID(dbc, uuid.New()); err != nil || missing != nil {
		t.Fatalf("GetByID missing: task=%v err=%v", missing, err)
	}
}

func TestTaskRepoClearStaleBindings(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewTaskRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	one := 1
	two := 2
	testutil.SeedTaskAtStage(t, ctx, tx, "stale-exec", types.StageImplementation, &one)
	todoBound := testutil.SeedTask(t, ctx, tx, "stale-todo")
	if err := tx.Model(&types.Task{}).Where("id = ?", todoBound.ID).Update("container_id", &two).Error; err != nil {
		t.Fatalf("seed binding: %v", err)
	}

	cleared, err := repo.ClearStaleBindings(dbc)
	if err != nil {
		t.Fatalf("ClearStaleBindings: %v", err)
	}
	if cleared != 2 {
		t.Fatalf("ClearStaleBindings: cleared=%d want 2", cleared)
	}

	var stillBound int64
	if err := tx.Model(&types.Task{}).Where("container_id IS NOT NULL").Count(&stillBound).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if stillBound != 0 {
		t.Fatalf("bindings remain: %d", stillBound)
	}
}
