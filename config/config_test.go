package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "https://www.metro.cl/api/estadoRedDetalle.php", cfg.Metro.APIURL)
	assert.Equal(t, time.Minute, cfg.Metro.PollPeriod())
	assert.Equal(t, 10*time.Second, cfg.Metro.Timeout())
	assert.True(t, cfg.Metro.ServiceHours)
	assert.Equal(t, "America/Santiago", cfg.Metro.Timezone)
	assert.Equal(t, "m!", cfg.Discord.Prefix)
	assert.Equal(t, 5*time.Minute, cfg.Telegram.EditTimeout())
	assert.Empty(t, cfg.Telegram.AdminIDs())
	assert.Equal(t, BackendFile, cfg.Access.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8089", cfg.Web.Addr)
	assert.Equal(t, 10, cfg.Database.MaxConns)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("METRO_POLL_SECONDS", "15")
	t.Setenv("METRO_SERVICE_HOURS", "false")
	t.Setenv("TELEGRAM_ADMIN_USERS", "123, 456,abc")
	t.Setenv("ACCESS_BACKEND", "minio")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Metro.PollPeriod())
	assert.False(t, cfg.Metro.ServiceHours)
	assert.Equal(t, []int64{123, 456}, cfg.Telegram.AdminIDs())
	assert.Equal(t, BackendMinio, cfg.Access.Backend)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DISCORD_PREFIX=!!\nLOG_FORMAT=json\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("DISCORD_PREFIX")
		os.Unsetenv("LOG_FORMAT")
	})

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "!!", cfg.Discord.Prefix)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestAccess_IsValidBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		want    bool
	}{
		{"File", BackendFile, true},
		{"Minio", BackendMinio, true},
		{"Invalid", "s3", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Access{Backend: tt.backend}.IsValidBackend())
		})
	}
}
