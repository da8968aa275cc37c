package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitselek/esmuseum-map-app-sub006/config"
)

func TestInitConfigDefaults(t *testing.T) {
	t.Setenv("BACKEND_DATABASE", "testdb")
	t.Setenv("QUEUE_COOLDOWN", "5s")

	require.NoError(t, config.InitConfig())
	cfg := config.GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://entu.app/api", cfg.Backend.URL)
	assert.Equal(t, "testdb", config.GetString("backend.database"))
	assert.Equal(t, 5*time.Second, config.GetDuration("queue.cooldown"))
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "ulesanne", cfg.Entity.TaskType)
	assert.Equal(t, "grupp", cfg.Entity.GroupProperty)
	assert.Equal(t, 120, cfg.RateLimit.Requests)
	assert.False(t, cfg.Redis.Enabled)
}
