package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/yungbote/conductor-backend/internal/domain"
	"github.com/yungbote/conductor-backend/internal/pkg/logger"
	"github.com/yungbote/conductor-backend/internal/utils"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New opens the task store. DB_DRIVER selects the engine: sqlite (default,
// matches the single-node deployment) or postgres.
func New(logg *logger.Logger) (*Service, error) {
	serviceLog := logg.With("service", "DBService")

	driver := strings.ToLower(utils.GetEnv("DB_DRIVER", "sqlite", logg))

	// GORM logger: ignore "record not found" spam (critical for polling workers)
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		handle *gorm.DB
		err    error
	)
	switch driver {
	case "postgres":
		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=disable",
			utils.GetEnv("POSTGRES_USER", "postgres", logg),
			utils.GetEnv("POSTGRES_PASSWORD", "", logg),
			utils.GetEnv("POSTGRES_HOST", "localhost", logg),
			utils.GetEnv("POSTGRES_PORT", "5432", logg),
			utils.GetEnv("POSTGRES_NAME", "conductor", logg),
		)
		logg.Info("Connecting to Postgres...")
		handle, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite":
		path := utils.GetEnv("SQLITE_PATH", "conductor.db", logg)
		logg.Info("Opening SQLite store...", "path", path)
		handle, err = gorm.Open(sqlite.Open(path), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	if err != nil {
		logg.Error("Failed to open database", "driver", driver, "error", err)
		return nil, fmt.Errorf("open database (%s): %w", driver, err)
	}

	return &Service{db: handle, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating task store tables...")
	if err := s.db.AutoMigrate(
		&types.Task{},
		&types.StageOutput{},
		&types.TaskAttempt{},
	); err != nil {
		s.log.Error("Automigrate failed", "error", err)
		return fmt.Errorf("automigrate: %w", err)
	}
	s.log.Info("Task store tables migrated")
	return nil
}
