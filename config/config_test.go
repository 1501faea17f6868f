package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "queueline.db", cfg.StoreDSN)
	assert.True(t, cfg.StrictJoin)
	assert.Equal(t, 6, cfg.CodeLength)
	assert.Equal(t, 5, cfg.CodeAttempts)
	assert.Equal(t, 150*time.Millisecond, cfg.RefreshDebounce)
	assert.Equal(t, 3, cfg.LookupMinChars)
	assert.Equal(t, 5, cfg.LookupLimit)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STRICT_JOIN", "false")
	t.Setenv("QUEUE_CODE_LENGTH", "8")
	t.Setenv("REFRESH_DEBOUNCE", "250ms")

	cfg := LoadConfig()

	assert.Equal(t, "9000", cfg.Port)
	assert.False(t, cfg.StrictJoin)
	assert.Equal(t, 8, cfg.CodeLength)
	assert.Equal(t, 250*time.Millisecond, cfg.RefreshDebounce)
}

func TestLoadConfig_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("QUEUE_CODE_LENGTH", "not-a-number")
	t.Setenv("STRICT_JOIN", "maybe")
	t.Setenv("REFRESH_DEBOUNCE", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 6, cfg.CodeLength)
	assert.True(t, cfg.StrictJoin)
	assert.Equal(t, 150*time.Millisecond, cfg.RefreshDebounce)
}
