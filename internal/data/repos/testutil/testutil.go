package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
)

var (
	dbOnce sync.Once
	db     *gorm.DB
	dbErr  error

	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated test database. In-memory SQLite by default;
// set TEST_POSTGRES_DSN to run against Postgres instead.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dbOnce.Do(func() {
		cfg := &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		}

		dsn := os.Getenv("TEST_POSTGRES_DSN")
		var err error
		if dsn != "" {
			db, err = gorm.Open(postgres.Open(dsn), cfg)
		} else {
			db, err = gorm.Open(sqlite.Open("file::memory:?cache=shared"), cfg)
		}
		if err != nil {
			dbErr = err
			return
		}

		if err := autoMigrateAll(db); err != nil {
			dbErr = err
			return
		}
	})

	if dbErr != nil {
		tb.Fatalf("failed to init test db: %v", dbErr)
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func autoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Task{},
		&types.StageOutput{},
		&types.TaskAttempt{},
	)
}

// SeedTask inserts an eligible task: todo status, no stage, no container.
func SeedTask(tb testing.TB, ctx context.Context, tx *gorm.DB, title string) *types.Task {
	tb.Helper()
	now := time.Now().UTC()
	t := &types.Task{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Title:     title,
		Status:    types.StatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed task: %v", err)
	}
	return t
}

// SeedTaskAtStage inserts a task pinned to a stage, optionally bound to a container.
func SeedTaskAtStage(tb testing.TB, ctx context.Context, tx *gorm.DB, title string, stage types.Stage, containerID *int) *types.Task {
	tb.Helper()
	now := time.Now().UTC()
	status := types.StatusInProgress
	if stage == types.StageCompleted {
		status = types.StatusDone
	}
	t := &types.Task{
		ID:          uuid.New(),
		ProjectID:   uuid.New(),
		Title:       title,
		Status:      status,
		Stage:       &stage,
		ContainerID: containerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed task at stage: %v", err)
	}
	return t
}
