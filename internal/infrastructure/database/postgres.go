// Package database provides the PostgreSQL connection used by the snapshot repository.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alejandroruanova/sfumato/internal/core/domain"
	"github.com/alejandroruanova/sfumato/internal/pkg/config"
)

// PostgresDB wraps the GORM database connection
type PostgresDB struct {
	DB     *gorm.DB
	logger *slog.Logger
}

// DSN builds the libpq connection string for cfg
func DSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

// NewPostgresDB creates a new PostgreSQL connection using GORM
func NewPostgresDB(cfg *config.DatabaseConfig, appLogger *slog.Logger) (*PostgresDB, error) {
	if appLogger == nil {
		appLogger = slog.Default()
	}

	db, err := Open(DSN(cfg), cfg.LogLevel == "debug")
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MinConnections)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxConnLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.MaxConnIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	appLogger.Info("database connection established",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("database", cfg.Database),
	)

	return &PostgresDB{
		DB:     db,
		logger: appLogger,
	}, nil
}

// Open opens a GORM handle for dsn. verbose enables SQL logging.
func Open(dsn string, verbose bool) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if verbose {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *PostgresDB) Close() error {
	db.logger.Info("closing database connection")
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Health returns health status of the database
func (db *PostgresDB) Health(ctx context.Context) map[string]interface{} {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return map[string]interface{}{
			"status": "down",
			"error":  err.Error(),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return map[string]interface{}{
			"status": "down",
			"error":  err.Error(),
		}
	}

	stats := sqlDB.Stats()

	return map[string]interface{}{
		"status":           "up",
		"max_open_conns":   stats.MaxOpenConnections,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration":    stats.WaitDuration.String(),
	}
}

// Migrate creates or updates the snapshot tables
func (db *PostgresDB) Migrate() error {
	db.logger.Info("running auto migrations")
	if err := Migrate(db.DB); err != nil {
		return err
	}
	db.logger.Info("migrations completed successfully")
	return nil
}

// Migrate runs the snapshot schema migrations on any GORM handle
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.SessionRecord{}, &domain.ArtifactRecord{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
