package db

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return NewMySQLRecorderWithDB(gdb), mock
}

func TestRecordExecution(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `batch_execution_records`")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := r.RecordExecution(BatchExecutionRecord{
		PoolID:          "0x1",
		TxHash:          "0xabc",
		CommitmentCount: 3,
		Success:         true,
		AttemptedAtMs:   1000,
		DurationMs:      50,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReveal(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `reveal_audit_records`")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := r.RecordReveal(RevealAuditRecord{
		PoolID:           "0x1",
		CommitmentHash:   "0xdef",
		SubmittedOnChain: true,
		SubmittedAtMs:    2000,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetExecutionsByPool(t *testing.T) {
	r, mock := newMockRecorder(t)

	rows := sqlmock.NewRows([]string{"id", "pool_id", "tx_hash", "commitment_count", "success", "error_message", "attempted_at_ms", "duration_ms", "created_at"}).
		AddRow(1, "0x1", "0xabc", 3, true, "", 1000, 50, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `batch_execution_records` WHERE pool_id = ?")).
		WithArgs("0x1").
		WillReturnRows(rows)

	records, err := r.GetExecutionsByPool("0x1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "0xabc", records[0].TxHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountFailuresSince(t *testing.T) {
	r, mock := newMockRecorder(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `batch_execution_records`")).
		WithArgs("0x1", false, int64(500)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := r.CountFailuresSince("0x1", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
