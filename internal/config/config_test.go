package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhive-dev/taskhive/internal/realtime"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskhive")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_CHANNEL", "")
	t.Setenv("CLIENT_URL", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("WS_SEND_BUFFER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Empty(t, cfg.Realtime.RedisURL)
	assert.Equal(t, realtime.DefaultBusChannel, cfg.Realtime.RedisChannel)
	assert.Equal(t, realtime.DefaultSendBuffer, cfg.Realtime.SendBuffer)
	assert.Equal(t, defaultOrigins, cfg.Server.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "8080")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CLIENT_URL", "https://app.taskhive.dev")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com")
	t.Setenv("WS_SEND_BUFFER", "16")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Realtime.RedisURL)
	assert.Equal(t, 16, cfg.Realtime.SendBuffer)
	assert.Equal(t, []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"https://app.taskhive.dev",
		"https://a.example.com",
		"https://b.example.com",
	}, cfg.Server.AllowedOrigins)
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/taskhive")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestInvalidSendBufferFallsBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/taskhive")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("WS_SEND_BUFFER", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, realtime.DefaultSendBuffer, cfg.Realtime.SendBuffer)
}
