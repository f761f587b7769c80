package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 5, c.MaxRetries)
	assert.Equal(t, 720*time.Hour, c.EntryPullWindow)
	assert.NotEmpty(t, c.DBPath)
	require.NoError(t, c.Validate())
}

func TestLoadJSON_OverlaysPresentKeys(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"server_url":            "https://api.example.com",
		"owner_id":              "u1",
		"online_check_interval": "10s",
		"sync_interval":         int64(2 * time.Minute),
		"max_retries":           0,
	})

	c := Default()
	require.NoError(t, c.LoadJSON(path))

	want := Default()
	want.ServerURL = "https://api.example.com"
	want.OwnerID = "u1"
	want.OnlineCheckInterval = 10 * time.Second
	want.SyncInterval = 2 * time.Minute
	want.MaxRetries = 0
	assert.Empty(t, cmp.Diff(want, c))
}

func TestLoadJSON_Errors(t *testing.T) {
	c := Default()
	require.Error(t, c.LoadJSON(filepath.Join(t.TempDir(), "missing.json")))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
	require.ErrorContains(t, c.LoadJSON(bad), "parse config")

	wrong := writeTempJSON(t, map[string]any{"request_timeout": "soon"})
	require.Error(t, c.LoadJSON(wrong))
}

func TestLoad_Precedence(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"server_url": "https://from-file.example.com",
		"owner_id":   "file-user",
		"log_level":  "debug",
	})

	tests := []struct {
		name string
		args []string
		want func(c *Config)
	}{
		{
			name: "defaults only",
			args: nil,
			want: func(c *Config) {},
		},
		{
			name: "file overrides defaults",
			args: []string{"--config", path},
			want: func(c *Config) {
				c.ServerURL = "https://from-file.example.com"
				c.OwnerID = "file-user"
				c.LogLevel = "debug"
			},
		},
		{
			name: "flags override file",
			args: []string{"-c", path, "-u", "flag-user", "--max-retries", "7", "-i", "1s", "--rps", "0"},
			want: func(c *Config) {
				c.ServerURL = "https://from-file.example.com"
				c.OwnerID = "flag-user"
				c.LogLevel = "debug"
				c.MaxRetries = 7
				c.OnlineCheckInterval = time.Second
				c.RequestsPerSecond = 0
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(newFlags(t, tt.args...))
			require.NoError(t, err)

			want := Default()
			tt.want(&want)
			assert.Empty(t, cmp.Diff(&want, got))
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(newFlags(t, "--max-retries", "0", "--log-level", "loud"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "max_retries")
	assert.ErrorContains(t, err, "loud")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.Error(t, fs.Parse([]string{"-i", "abc"}))
}
