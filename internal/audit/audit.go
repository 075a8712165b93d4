// Package audit implements the optional MySQL audit hook from spec.md
// §4.4 step 8 / §6: one row per update tick capturing the per-source
// observations that went into the aggregated rate, the aggregated
// value itself, and what was actually submitted.
//
// Grounded on ChoSanghyuk-blackholedex's internal/db/transaction_recorder.go:
// the same gorm.Open(mysql.Open(dsn)) / AutoMigrate / Create shape,
// adapted from asset snapshots to rate observations.
package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SourceObservation is one source's contribution to a tick, recorded
// alongside the aggregated and submitted rates.
type SourceObservation struct {
	Source string
	Rate   string // decimal string, logging/audit precision only
}

// Record is one update tick's worth of audit data, per §4.4 step 8's
// (observed_sources, aggregated_rate, submitted_rate, timestamp) tuple.
type Record struct {
	CorrelationID  string
	AggregatedRate string
	SubmittedRate  string
	Classification string
	Submitted      bool
	Observed       []SourceObservation
}

// rateObservationRow is the database model for one Record.
type rateObservationRow struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp      time.Time `gorm:"index;not null"`
	CorrelationID  string    `gorm:"type:varchar(36);index;not null"`
	AggregatedRate string    `gorm:"type:varchar(64);not null"`
	SubmittedRate  string    `gorm:"type:varchar(64);not null"`
	Classification string    `gorm:"type:varchar(8);not null"`
	Submitted      bool      `gorm:"not null"`
	ObservedJSON   string    `gorm:"type:text;not null;comment:JSON array of per-source observations"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (rateObservationRow) TableName() string {
	return "rate_observations"
}

// Hook is the synchronous post-submission audit writer. A nil Hook
// (no database-url configured) is a valid no-op per §6's "optional".
type Hook struct {
	db *gorm.DB
}

// NewMySQLHook opens a GORM connection against dsn and migrates the
// rate_observations table. dsn format matches the teacher's:
// "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local".
func NewMySQLHook(dsn string) (*Hook, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: connecting to mysql: %w", err)
	}

	if err := db.AutoMigrate(&rateObservationRow{}); err != nil {
		return nil, fmt.Errorf("audit: migrating schema: %w", err)
	}

	return &Hook{db: db}, nil
}

// Write inserts one row for the tick. Per §4.4 step 8 a write failure
// must never block future updates — the caller in internal/submitter
// is expected to log and count the error, not retry or abort.
func (h *Hook) Write(ctx context.Context, rec Record, observedAt time.Time) error {
	if h == nil {
		return nil
	}

	observedJSON, err := marshalObserved(rec.Observed)
	if err != nil {
		return fmt.Errorf("audit: encoding observations: %w", err)
	}

	row := rateObservationRow{
		Timestamp:      observedAt,
		CorrelationID:  rec.CorrelationID,
		AggregatedRate: rec.AggregatedRate,
		SubmittedRate:  rec.SubmittedRate,
		Classification: rec.Classification,
		Submitted:      rec.Submitted,
		ObservedJSON:   observedJSON,
	}

	result := h.db.WithContext(ctx).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("audit: inserting rate observation row: %w", result.Error)
	}
	return nil
}

// Close releases the underlying connection pool.
func (h *Hook) Close() error {
	if h == nil {
		return nil
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return fmt.Errorf("audit: getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
