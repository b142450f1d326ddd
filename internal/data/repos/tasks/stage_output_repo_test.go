package tasks

import (
	"context"
	"testing"

	"github.com/yungbote/conductor-backend/internal/data/repos/testutil"
	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/dbctx"
)

func TestStageOutputUpsertOverwrites(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewStageOutputRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	task := testutil.SeedTask(t, ctx, tx, "X")

	first, err := repo.CreateOrReplace(dbc, task.ID, types.StageSpecification, "cmd-1", "out-1", true)
	if err != nil {
		t.Fatalf("CreateOrReplace #1: %v", err)
	}

	second, err := repo.CreateOrReplace(dbc, task.ID, types.StageSpecification, "cmd-2", "out-2", false)
	if err != nil {
		t.Fatalf("CreateOrReplace #2: %v", err)
	}

	all, err := repo.ListByTask(dbc, task.ID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single row, got %d", len(all))
	}
	if *all[0].Output != "out-2" || *all[0].CommandUsed != "cmd-2" || all[0].Success {
		t.Fatalf("overwrite not applied: %+v", all[0])
	}
	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatalf("created_at went backwards: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestStageOutputFindMissing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewStageOutputRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	task := testutil.SeedTask(t, ctx, tx, "X")

	out, err := repo.FindByTaskAndStage(dbc, task.ID, types.StageReviewQa)
	if err != nil {
		t.Fatalf("FindByTaskAndStage: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil for missing output, got %+v", out)
	}
}

func TestStageOutputDeleteFrom(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewStageOutputRepo(tx, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	seed := func() *types.Task {
		task := testutil.SeedTask(t, ctx, tx, "X")
		for _, stage := range []types.Stage{types.StageSpecification, types.StageImplementation, types.StageReviewQa} {
			if _, err := repo.CreateOrReplace(dbc, task.ID, stage, "cmd", "out", true); err != nil {
				t.Fatalf("seed output: %v", err)
			}
		}
		return task
	}

	cases := []struct {
		from      types.Stage
		remaining int
	}{
		{types.StagePending, 0},
		{types.StageSpecification, 0},
		{types.StageImplementation, 1},
		{types.StageReviewQa, 2},
		{types.StageCompleted, 3},
	}

	for _, tc := range cases {
		task := seed()
		if err := repo.DeleteFrom(dbc, task.ID, tc.from); err != nil {
			t.Fatalf("DeleteFrom(%s): %v", tc.from, err)
		}
		rows, err := repo.ListByTask(dbc, task.ID)
		if err != nil {
			t.Fatalf("ListByTask: %v", err)
		}
		if len(rows) != tc.remaining {
			t.Fatalf("DeleteFrom(%s): remaining=%d want %d", tc.from, len(rows), tc.remaining)
		}
		for _, row := range rows {
			if !row.Stage.Before(tc.from) {
				t.Fatalf("DeleteFrom(%s): stage %s should have been deleted", tc.from, row.Stage)
			}
		}
	}
}
