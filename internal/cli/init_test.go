package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teambudget/internal/config"
	"teambudget/internal/core"
	"teambudget/internal/log"
	"teambudget/internal/storage/memory"
)

func TestPublishersAreNilInterfacesWithoutClient(t *testing.T) {
	assert.Nil(t, ChangePublisher(nil))
	assert.Nil(t, NotificationPublisher(nil))
}

func TestReadiness(t *testing.T) {
	assert.Nil(t, Readiness(memory.New()), "memory store has no ping")
}

func TestNewCycleWorker(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("CYCLE_INTERVAL", "5m")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("SEEN_CACHE_TTL", "1h")
	cfg := config.Load()
	require.NoError(t, cfg.Validate())

	logger := log.New(log.DefaultConfig())
	store := memory.NewSeeded()
	w, manager := NewCycleWorker(logger, cfg, store, nil)
	t.Cleanup(manager.Stop)

	report, err := w.RunOnce(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, core.DateOf(time.Now().In(cfg.Location())), report.Today)
}
