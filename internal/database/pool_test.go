package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return mock, gormDB
}

func TestNewPoolManager(t *testing.T) {
	_, gormDB := setupMockDB(t)

	config := PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour}
	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)

	assert.Same(t, gormDB, manager.DB())
	assert.Equal(t, 10, manager.Stats().MaxOpenConnections)

	_, err = NewPoolManager(nil, config, nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	mock, gormDB := setupMockDB(t)
	manager, err := NewPoolManager(gormDB, PoolConfig{}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mock, gormDB := setupMockDB(t)
	manager, err := NewPoolManager(gormDB, PoolConfig{}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	mock, gormDB := setupMockDB(t)
	manager, err := NewPoolManager(gormDB, PoolConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("ERROR: deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_Permanent(t *testing.T) {
	mock, gormDB := setupMockDB(t)
	manager, err := NewPoolManager(gormDB, PoolConfig{}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return errors.New("duplicate key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPoolManager_Close(t *testing.T) {
	mock, gormDB := setupMockDB(t)
	manager, err := NewPoolManager(gormDB, PoolConfig{HealthCheckInterval: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolManager_HealthCheckLoop(t *testing.T) {
	mock, gormDB := setupMockDB(t)
	mock.ExpectPing()

	manager, err := NewPoolManager(gormDB, PoolConfig{HealthCheckInterval: 20 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
}

func TestOpen_SQLite(t *testing.T) {
	manager, err := Open("sqlite", ":memory:", PoolConfig{MaxOpenConns: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	require.NoError(t, manager.Ping(context.Background()))

	var n int
	require.NoError(t, manager.DB().Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialector(driver, "dsn")
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector("oracle", "dsn")
	assert.Error(t, err)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Deadlock found when trying to get lock"), true},
		{errors.New("pq: could not serialize access (SQLSTATE 40001)"), true},
		{errors.New("database is locked"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("record not found"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}
