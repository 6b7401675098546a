package migration

import (
	"fmt"

	"go.uber.org/zap"

	appconfig "github.com/BaSui01/agentroom/config"
	"github.com/BaSui01/agentroom/internal/database"
)

// NewMigratorFromDatabaseConfig opens the configured database through the
// shared pool opener and returns a migrator on it. Closing the migrator
// closes the connection.
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	// 迁移只需要单个连接
	poolCfg := dbCfg.Pool()
	poolCfg.MaxOpenConns, poolCfg.MaxIdleConns = 1, 1
	poolCfg.HealthCheckInterval = 0

	pool, err := database.Open(string(dbType), dbCfg.DSN(), poolCfg, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := pool.DB().DB()
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	m, err := NewMigrator(sqlDB, Config{DatabaseType: dbType}, logger)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	return m, nil
}
