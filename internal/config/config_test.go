package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thereayou/letstalk/internal/config"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:config_test?mode=memory")
	t.Setenv("JWT_SECRET", "secret")
}

func TestFromEnv_Defaults(t *testing.T) {
	req := require.New(t)
	setRequired(t)

	cfg, err := config.FromEnv()

	req.NoError(err)
	req.Equal(8080, cfg.Port)
	req.Equal("letstalk:", cfg.RedisPrefix)
	req.Equal(24*time.Hour, cfg.TokenTTL)
	req.Equal([]string{"JavaScript", "Python", "PHP", "C#", "Ruby", "Java"}, cfg.PredefinedRooms)
	req.Equal(6, cfg.JoinCodeLength)
	req.Equal(2000, cfg.MaxMessageLength)
	req.Equal(5*time.Second, cfg.ArchiveTimeout)
	req.True(cfg.BridgeLocalFallback)
	req.Equal(15*time.Second, cfg.RosterRefreshInterval)
	req.NotEmpty(cfg.InstanceID)
}

func TestFromEnv_Overrides(t *testing.T) {
	req := require.New(t)
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("INSTANCE_ID", "node-1")
	t.Setenv("PREDEFINED_ROOMS", "Go,Rust")
	t.Setenv("JOIN_CODE_LENGTH", "8")
	t.Setenv("BRIDGE_LOCAL_FALLBACK", "false")
	t.Setenv("ROSTER_REFRESH_INTERVAL", "5s")

	cfg, err := config.FromEnv()

	req.NoError(err)
	req.Equal(9090, cfg.Port)
	req.Equal("node-1", cfg.InstanceID)
	req.Equal([]string{"Go", "Rust"}, cfg.PredefinedRooms)
	req.Equal(8, cfg.JoinCodeLength)
	req.False(cfg.BridgeLocalFallback)
	req.Equal(5*time.Second, cfg.RosterRefreshInterval)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "missing database", key: "DATABASE_URL", val: ""},
		{name: "missing secret", key: "JWT_SECRET", val: ""},
		{name: "short join code", key: "JOIN_CODE_LENGTH", val: "2"},
		{name: "bad port", key: "PORT", val: "not-a-number"},
		{name: "no archive workers", key: "ARCHIVE_WORKERS", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)

			_, err := config.FromEnv()
			require.Error(t, err)
		})
	}
}
