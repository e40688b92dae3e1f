package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RUN_RETRY_BUDGET", "")
	t.Setenv("RUN_POLL_UNIT", "")

	cfg := Load()

	assert.Equal(t, 3, cfg.Run.RetryBudget)
	assert.Equal(t, time.Second, cfg.Run.PollUnit)
	assert.Equal(t, "file_search", cfg.Assistant.AttachmentTool)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RUN_RETRY_BUDGET", "5")
	t.Setenv("RUN_POLL_UNIT", "250ms")
	t.Setenv("ASSISTANT_HTTP_TIMEOUT", "30")
	t.Setenv("SESSION_STORE", "redis")

	cfg := Load()

	assert.Equal(t, 5, cfg.Run.RetryBudget)
	assert.Equal(t, 250*time.Millisecond, cfg.Run.PollUnit)
	assert.Equal(t, 30*time.Second, cfg.Assistant.Timeout)
	assert.Equal(t, "redis", cfg.App.SessionStore)
}

func TestGetEnvAsDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvAsDuration("SOME_DURATION", time.Minute))
}
