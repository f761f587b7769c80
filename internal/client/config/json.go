package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/nutrisync/internal/timex"
)

// jsonConfig is the file representation. Pointer fields tell a missing key
// apart from an explicit zero.
type jsonConfig struct {
	ServerURL           *string         `json:"server_url"`
	AuthToken           *string         `json:"auth_token"`
	OwnerID             *string         `json:"owner_id"`
	DBPath              *string         `json:"db_path"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	MaxRetries          *int            `json:"max_retries"`
	EntryPullWindow     *timex.Duration `json:"entry_pull_window"`
	RequestsPerSecond   *float64        `json:"requests_per_second"`
	LogFile             *string         `json:"log_file"`
	LogLevel            *string         `json:"log_level"`
}

// LoadJSON overlays c with the keys present in the file at path.
func (c *Config) LoadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.ServerURL, jc.ServerURL)
	setString(&c.AuthToken, jc.AuthToken)
	setString(&c.OwnerID, jc.OwnerID)
	setString(&c.DBPath, jc.DBPath)
	setString(&c.LogFile, jc.LogFile)
	setString(&c.LogLevel, jc.LogLevel)
	if jc.OnlineCheckInterval != nil {
		c.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.SyncInterval != nil {
		c.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.RequestTimeout != nil {
		c.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.EntryPullWindow != nil {
		c.EntryPullWindow = jc.EntryPullWindow.Duration
	}
	if jc.MaxRetries != nil {
		c.MaxRetries = *jc.MaxRetries
	}
	if jc.RequestsPerSecond != nil {
		c.RequestsPerSecond = *jc.RequestsPerSecond
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
