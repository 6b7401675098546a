package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`
personas:
  source: database
database:
  driver: sqlite
  name: %s
`, filepath.Join(dir, "personas.db"))
	path := filepath.Join(dir, "agentroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestMigrateCommand_Lifecycle(t *testing.T) {
	path := writeMigrateConfig(t)
	ctx := context.Background()

	// 标志必须位于数字参数之前
	run := func(sub string, rest ...string) string {
		t.Helper()
		var out bytes.Buffer
		args := append([]string{sub, "--config", path}, rest...)
		require.NoError(t, migrateCommand(ctx, args, &out))
		return out.String()
	}

	assert.Contains(t, run("version"), "No migrations applied yet")
	assert.Contains(t, run("up"), "Current version: 2")
	assert.Contains(t, run("status"), "Total: 2, Applied: 2, Pending: 0")
	assert.Contains(t, run("down"), "Current version: 1")
	assert.Contains(t, run("goto", "2"), "Current version: 2")
	assert.Contains(t, run("steps", "--", "-1"), "Current version: 1")
	assert.Contains(t, run("force", "2"), "Version forced to 2")
	assert.Contains(t, run("version"), "Current version: 2")
}

func TestMigrateCommand_Errors(t *testing.T) {
	path := writeMigrateConfig(t)
	ctx := context.Background()
	var out bytes.Buffer

	assert.ErrorIs(t, migrateCommand(ctx, nil, &out), errMigrateUsage)
	assert.ErrorIs(t, migrateCommand(ctx, []string{"sideways", "--config", path}, &out), errMigrateUsage)
	assert.ErrorIs(t, migrateCommand(ctx, []string{"goto", "--config", path}, &out), errMigrateUsage)
	assert.Error(t, migrateCommand(ctx, []string{"goto", "--config", path, "two"}, &out))
	assert.Error(t, migrateCommand(ctx, []string{"goto", "--config", path, "-3"}, &out))
	assert.Error(t, migrateCommand(ctx, []string{"up", "--driver", "oracle", "--config", path}, &out))
}
