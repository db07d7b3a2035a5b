package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tyemirov/guiderelay/internal/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// InitDB opens (or creates) the SQLite delivery log and migrates its schema.
func InitDB(databasePath string, slogger *slog.Logger) (*gorm.DB, error) {
	slogger.Info("Initializing delivery log", "path", databasePath)

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{
		Logger: &slogGormLogger{logger: slogger},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}

	if err := database.AutoMigrate(&model.DeliveryRecord{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return database, nil
}

// DeliveryLog persists email attempts.
type DeliveryLog struct {
	database *gorm.DB
}

func NewDeliveryLog(database *gorm.DB) *DeliveryLog {
	return &DeliveryLog{database: database}
}

// RecordDelivery stores one attempt.
func (deliveryLog *DeliveryLog) RecordDelivery(ctx context.Context, record model.DeliveryRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return model.CreateDeliveryRecord(ctx, deliveryLog.database, &record)
}

// Recent lists the newest attempts first.
func (deliveryLog *DeliveryLog) Recent(ctx context.Context, limit int) ([]model.DeliveryRecord, error) {
	return model.ListRecentDeliveryRecords(ctx, deliveryLog.database, limit)
}

// Close releases the underlying connection pool.
func (deliveryLog *DeliveryLog) Close() error {
	sqlDB, err := deliveryLog.database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type slogGormLogger struct {
	logger *slog.Logger
}

var _ logger.Interface = (*slogGormLogger)(nil)

func (l *slogGormLogger) LogMode(logger.LogLevel) logger.Interface {
	return l
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.logger.ErrorContext(ctx, "gorm_query_failed", "error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > slowQueryThreshold:
		sql, rows := fc()
		l.logger.WarnContext(ctx, "gorm_slow_query", "sql", sql, "rows", rows, "elapsed", elapsed)
	default:
		if l.logger.Enabled(ctx, slog.LevelDebug) {
			sql, rows := fc()
			l.logger.DebugContext(ctx, "gorm_query", "sql", sql, "rows", rows, "elapsed", elapsed)
		}
	}
}
