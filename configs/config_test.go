package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchswap/coordinator/pkg/coordinator"
)

func TestLoadDotEnvIfPresent(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		err := LoadDotEnvIfPresent(filepath.Join(t.TempDir(), "does-not-exist.env"))
		assert.NoError(t, err)
	})

	t.Run("present file overlays the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env.test.local")
		require.NoError(t, os.WriteFile(path, []byte("BATCHSWAP_TEST_VAR=loaded\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("BATCHSWAP_TEST_VAR") })

		require.NoError(t, LoadDotEnvIfPresent(path))
		assert.Equal(t, "loaded", os.Getenv("BATCHSWAP_TEST_VAR"))
	})
}

func TestCoordinatorConfig_ToCoordinatorConfig(t *testing.T) {
	t.Run("known strategy passes through", func(t *testing.T) {
		c := CoordinatorConfig{
			MinTotalCommitments: 5,
			QuorumAgents:        2,
			CountdownSeconds:    3,
			ConflictResolution:  ConflictResolutionConfig{Strategy: "mean"},
		}
		got := c.ToCoordinatorConfig()
		assert.Equal(t, coordinator.ConflictMean, got.ConflictResolution)
		assert.Equal(t, 3*time.Second, got.CountdownDuration)
	})

	t.Run("unset or unknown strategy defaults to median", func(t *testing.T) {
		c := CoordinatorConfig{}
		got := c.ToCoordinatorConfig()
		assert.Equal(t, coordinator.ConflictMedian, got.ConflictResolution)

		c.ConflictResolution.Strategy = "bogus"
		got = c.ToCoordinatorConfig()
		assert.Equal(t, coordinator.ConflictMedian, got.ConflictResolution)
	})
}

func TestExecutorConfig_ToExecutorConfig(t *testing.T) {
	e := ExecutorConfig{
		PollIntervalSeconds:   5,
		MaxRetries:            2,
		BaseBackoffMillis:     250,
		PostRevealDelayMillis: 100,
		ZKMode:                true,
	}
	got := e.ToExecutorConfig()
	assert.Equal(t, 5*time.Second, got.PollInterval)
	assert.Equal(t, 2, got.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, got.BaseBackoff)
	assert.Equal(t, 100*time.Millisecond, got.PostRevealDelay)
	assert.True(t, got.ZKMode)
}
