package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/fablecast-backend/internal/domain"
	"github.com/yungbote/fablecast-backend/internal/platform/env"
	"github.com/yungbote/fablecast-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "PostgresService")

	dsn := env.Get("POSTGRES_DSN", "", slog)
	if dsn == "" {
		return nil, fmt.Errorf("missing POSTGRES_DSN")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(env.GetInt("POSTGRES_MAX_OPEN_CONNS", 20, slog))
	sqlDB.SetMaxIdleConns(env.GetInt("POSTGRES_MAX_IDLE_CONNS", 10, slog))
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return &PostgresService{db: gdb, log: slog}, nil
}

func (p *PostgresService) DB() *gorm.DB { return p.db }

func (p *PostgresService) AutoMigrateAll() error {
	if err := p.db.AutoMigrate(domain.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	p.log.Info("Auto migration complete")
	return nil
}
