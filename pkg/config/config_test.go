package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/scheduler/pkg/config"
)

func clearSchedulerEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"SCHEDULER_LOCAL_MODE", "SCHEDULER_DATABASE_URL", "SCHEDULER_DATABASE_DRIVER",
		"SCHEDULER_SQLITE_PATH", "APP_ENV", "SCHEDULER_SOLVER_WORKERS",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		_ = os.Unsetenv(v)
	}
}

func TestLoad_DefaultsToLocalSQLiteMode(t *testing.T) {
	clearSchedulerEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsLocalMode())
	assert.True(t, cfg.IsSQLite())
	assert.False(t, cfg.IsPostgres())
	assert.Equal(t, "development", cfg.AppEnv)
}

func TestLoad_DatabaseURLSwitchesToPostgres(t *testing.T) {
	clearSchedulerEnv(t)
	t.Setenv("SCHEDULER_DATABASE_URL", "postgres://u:p@host:5432/db")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsLocalMode())
	assert.True(t, cfg.IsPostgres())
}

func TestLoad_SolverWorkerCountOverride(t *testing.T) {
	clearSchedulerEnv(t)
	t.Setenv("SCHEDULER_SOLVER_WORKERS", "8")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.SolverWorkerCount)
}
