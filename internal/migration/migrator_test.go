package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	appconfig "github.com/BaSui01/agentroom/config"
	"github.com/BaSui01/agentroom/internal/database"
	"github.com/BaSui01/agentroom/persona"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", "postgres", DatabaseTypePostgres, false},
		{"postgresql", "postgresql", DatabaseTypePostgres, false},
		{"pg", "pg", DatabaseTypePostgres, false},
		{"mysql", "mysql", DatabaseTypeMySQL, false},
		{"mariadb", "mariadb", DatabaseTypeMySQL, false},
		{"sqlite", "sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", "sqlite3", DatabaseTypeSQLite, false},
		{"uppercase", "POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAvailableMigrations(t *testing.T) {
	for _, dialect := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dialect), func(t *testing.T) {
			files, err := availableMigrations(dialect)
			require.NoError(t, err)
			require.Len(t, files, 2)
			assert.Equal(t, uint(1), files[0].version)
			assert.Equal(t, "create_personas", files[0].name)
			assert.Equal(t, uint(2), files[1].version)
		})
	}

	_, err := availableMigrations("oracle")
	assert.Error(t, err)
}

func TestNewMigrator_NilDB(t *testing.T) {
	_, err := NewMigrator(nil, Config{DatabaseType: DatabaseTypeSQLite}, nil)
	assert.Error(t, err)
}

func sqliteConfig(t *testing.T) appconfig.DatabaseConfig {
	t.Helper()
	return appconfig.DatabaseConfig{
		Driver: "sqlite",
		Name:   filepath.Join(t.TempDir(), "personas.db"),
	}
}

func TestMigrator_SQLite(t *testing.T) {
	m, err := NewMigratorFromDatabaseConfig(sqliteConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "up on a current schema is a no-op")

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), info.CurrentVersion)
	assert.Equal(t, 2, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)

	require.NoError(t, m.Goto(ctx, 2))
	require.NoError(t, m.Steps(ctx, -2))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrator_SchemaFitsPersonaRecords(t *testing.T) {
	cfg := sqliteConfig(t)

	m, err := NewMigratorFromDatabaseConfig(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, m.Close())

	pool, err := database.Open("sqlite", cfg.DSN(), database.PoolConfig{}, nil)
	require.NoError(t, err)
	defer pool.Close()

	dir := persona.NewGormDirectory(pool.DB(), nil)
	ctx := context.Background()
	require.NoError(t, dir.Upsert(ctx,
		persona.Descriptor{ID: "mika", Name: "Mika", Keywords: []string{"trip"}, Interests: map[string]float64{"travel": 0.9}, Expressive: true},
		persona.Descriptor{ID: "ren", Name: "Ren"},
	))

	descs, err := dir.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mika", "ren"}, persona.IDs(descs))
	assert.Equal(t, []string{"trip"}, descs[0].Keywords)
	assert.InDelta(t, 0.9, descs[0].Interests["travel"], 1e-9)
	assert.True(t, descs[0].Expressive)
}

func TestCLI_Output(t *testing.T) {
	m, err := NewMigratorFromDatabaseConfig(sqliteConfig(t), nil)
	require.NoError(t, err)
	defer m.Close()

	var out bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&out)
	ctx := context.Background()

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, out.String(), "No migrations applied yet")

	out.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	assert.Contains(t, out.String(), "create_personas")
	assert.Contains(t, out.String(), "Total: 2, Applied: 2, Pending: 0")

	out.Reset()
	require.NoError(t, cli.RunDown(ctx))
	assert.Contains(t, out.String(), "Current version: 1")
}
