// Package db persists batch execution history and reveal audit trail via
// GORM, the way the teacher's transaction_recorder persists asset
// snapshots: one MySQL-backed recorder, bare structs as models, errors
// wrapped with the operation that failed.
package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BatchExecutionRecord is one row per batch execution attempt, mirroring
// pkg/executor.ExecutionRecord for durability across restarts.
type BatchExecutionRecord struct {
	ID              uint   `gorm:"primaryKey"`
	PoolID          string `gorm:"index;size:66"`
	TxHash          string `gorm:"size:66"`
	BlockNumber     uint64
	GasUsed         uint64
	CommitmentCount int
	Success         bool
	ErrorMessage    string `gorm:"type:text"`
	AttemptedAtMs   int64
	DurationMs      int64
	CreatedAt       time.Time
}

func (BatchExecutionRecord) TableName() string { return "batch_execution_records" }

// RevealAuditRecord is one row per reveal accepted into the buffer,
// recording the lifecycle transition for after-the-fact dispute
// resolution.
type RevealAuditRecord struct {
	ID              uint `gorm:"primaryKey"`
	PoolID          string `gorm:"index;size:66"`
	CommitmentHash  string `gorm:"index;size:66"`
	SubmittedOnChain bool
	SubmittedAtMs   int64
	CreatedAt       time.Time
}

func (RevealAuditRecord) TableName() string { return "reveal_audit_records" }

// Recorder persists execution and reveal history to MySQL via GORM.
type Recorder struct {
	db *gorm.DB
}

// NewMySQLRecorder opens a MySQL connection via dsn, runs AutoMigrate for
// both models, and returns a ready Recorder.
func NewMySQLRecorder(dsn string) (*Recorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	if err := db.AutoMigrate(&BatchExecutionRecord{}, &RevealAuditRecord{}); err != nil {
		return nil, fmt.Errorf("failed to automigrate: %w", err)
	}
	return &Recorder{db: db}, nil
}

// NewMySQLRecorderWithDB wraps an already-opened *gorm.DB, used by tests
// to inject a sqlmock-backed connection.
func NewMySQLRecorderWithDB(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// GetDB exposes the underlying *gorm.DB for callers that need raw query
// access beyond this package's recorder methods.
func (r *Recorder) GetDB() *gorm.DB {
	return r.db
}

// Close releases the underlying connection pool.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// RecordExecution inserts a BatchExecutionRecord row.
func (r *Recorder) RecordExecution(rec BatchExecutionRecord) error {
	if err := r.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record batch execution: %w", err)
	}
	return nil
}

// RecordReveal inserts a RevealAuditRecord row.
func (r *Recorder) RecordReveal(rec RevealAuditRecord) error {
	if err := r.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to record reveal audit entry: %w", err)
	}
	return nil
}

// GetExecutionsByPool returns every recorded execution for poolID,
// most recent first.
func (r *Recorder) GetExecutionsByPool(poolID string) ([]BatchExecutionRecord, error) {
	var records []BatchExecutionRecord
	if err := r.db.Where("pool_id = ?", poolID).Order("attempted_at_ms DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query executions for pool %s: %w", poolID, err)
	}
	return records, nil
}

// CountFailuresSince returns the number of failed executions for poolID
// recorded at or after sinceMs.
func (r *Recorder) CountFailuresSince(poolID string, sinceMs int64) (int64, error) {
	var count int64
	err := r.db.Model(&BatchExecutionRecord{}).
		Where("pool_id = ? AND success = ? AND attempted_at_ms >= ?", poolID, false, sinceMs).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count failures for pool %s: %w", poolID, err)
	}
	return count, nil
}
