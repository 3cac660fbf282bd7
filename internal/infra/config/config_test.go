package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name: "full config",
			yaml: `
server:
  addr: ":9000"
library:
  database_path: /library/media.db
  music_root: /library/music
playback:
  progress_interval_ms: 100
analyzer:
  window_size: 2048
  bins: 64
engine:
  type: speaker
  settings:
    sample_rate: 48000
log:
  level: debug
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":9000", cfg.Server.Addr)
				assert.Equal(t, "/library/media.db", cfg.Library.DatabasePath)
				assert.Equal(t, 100, cfg.Playback.ProgressIntervalMs)
				assert.Equal(t, 2048, cfg.Analyzer.WindowSize)
				assert.Equal(t, 64, cfg.Analyzer.Bins)
				assert.Equal(t, 48000, cfg.Engine.Settings["sample_rate"])
				assert.Equal(t, "debug", cfg.Log.Level)
			},
		},
		{
			name: "defaults fill empty file",
			yaml: "{}\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":8680", cfg.Server.Addr)
				assert.Equal(t, 200, cfg.Playback.ProgressIntervalMs)
				assert.Equal(t, 1024, cfg.Analyzer.WindowSize)
				assert.Equal(t, 32, cfg.Analyzer.Bins)
				assert.Equal(t, "speaker", cfg.Engine.Type)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.True(t, cfg.Analyzer.Enabled)
			},
		},
		{
			name: "database path without music root",
			yaml: `
library:
  database_path: /library/media.db
`,
			wantErr: true,
			errMsg:  "music_root",
		},
		{
			name: "window size not a power of two",
			yaml: `
analyzer:
  window_size: 1000
`,
			wantErr: true,
			errMsg:  "power of two",
		},
		{
			name: "progress interval too small",
			yaml: `
playback:
  progress_interval_ms: 5
`,
			wantErr: true,
			errMsg:  "ProgressIntervalMs",
		},
		{
			name: "unknown log level",
			yaml: `
log:
  level: loud
`,
			wantErr: true,
			errMsg:  "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HUB_ADDR", ":7777")
	t.Setenv("HUB_LIBRARY_DB", "/env/media.db")
	t.Setenv("HUB_MUSIC_ROOT", "/env/music")
	t.Setenv("HUB_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, `
server:
  addr: ":9000"
library:
  database_path: /file/media.db
  music_root: /file/music
`))
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "/env/media.db", cfg.Library.DatabasePath)
	assert.Equal(t, "/env/music", cfg.Library.MusicRoot)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, ":8680", cfg.Server.Addr)
	assert.Empty(t, cfg.Library.DatabasePath)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
