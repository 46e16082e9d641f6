package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.LockBackend)
	require.Equal(t, "FIFO", cfg.CostingMethod)
	require.Equal(t, 5*time.Second, cfg.LockTimeout)
	require.Equal(t, 30*24*time.Hour, cfg.AlertExpiryWindow)
}

func TestLoadConfigNormalisesMethod(t *testing.T) {
	t.Setenv("COSTING_METHOD", "weighted_average")
	t.Setenv("LOCK_BACKEND", "Redis")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "WEIGHTED_AVERAGE", cfg.CostingMethod)
	require.Equal(t, "redis", cfg.LockBackend)
}

func TestLoadConfigRejectsUnknownMethod(t *testing.T) {
	t.Setenv("COSTING_METHOD", "LIFO")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownLockBackend(t *testing.T) {
	t.Setenv("LOCK_BACKEND", "etcd")
	_, err := LoadConfig()
	require.Error(t, err)
}
