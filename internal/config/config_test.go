package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearLocale(t *testing.T) {
	t.Helper()

	for _, key := range []string{"LOCALE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearLocale(t)
	t.Setenv("DEFAULT_DIR", "/data/files")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/data/files", cfg.DefaultDir)
	assert.Equal(t, "diablo.ini", cfg.MarkerFile)
	assert.Equal(t, "en_US", cfg.Locale)
	assert.Equal(t, "fetches.db", cfg.DBPath)
	assert.Equal(t, 3, cfg.MaxParallel)
	assert.Equal(t, 72*time.Hour, cfg.PartialRetention)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 2*time.Second, cfg.WatchRate)
	assert.True(t, cfg.Watch)
	assert.False(t, cfg.ExitWhenReady)
	assert.True(t, cfg.TelemetryEnabled)
	assert.Equal(t, "127.0.0.1:9092", cfg.Web.BindAddress)
	assert.Empty(t, cfg.Candidates())
}

func TestLoadConfig_RequiresDefaultDir(t *testing.T) {
	t.Setenv("DEFAULT_DIR", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_CandidateDirs(t *testing.T) {
	t.Setenv("DEFAULT_DIR", "/data/files")
	t.Setenv("CANDIDATE_DIRS", "/sdcard/devilutionx, ,/storage/emulated/0/devilutionx")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"/sdcard/devilutionx", "/storage/emulated/0/devilutionx"}, cfg.Candidates())
}

func TestLoadConfig_Locale(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "explicit", env: map[string]string{"LOCALE": "pl_PL", "LANG": "ru_RU.UTF-8"}, want: "pl_PL"},
		{name: "lang fallback", env: map[string]string{"LANG": "ru_RU.UTF-8"}, want: "ru_RU.UTF-8"},
		{name: "lc_all wins over lang", env: map[string]string{"LC_ALL": "ko_KR", "LANG": "ru_RU"}, want: "ko_KR"},
		{name: "posix locale", env: map[string]string{"LANG": "C"}, want: "en_US"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLocale(t)
			t.Setenv("DEFAULT_DIR", "/data/files")

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Locale)
		})
	}
}

func TestLoadConfig_InvalidParallelism(t *testing.T) {
	t.Setenv("DEFAULT_DIR", "/data/files")
	t.Setenv("MAX_PARALLEL", "0")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}
