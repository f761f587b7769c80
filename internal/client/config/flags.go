package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Flag names.
const (
	FlagConfig              = "config"
	FlagServer              = "server"
	FlagToken               = "token"
	FlagOwner               = "owner"
	FlagDB                  = "db"
	FlagOnlineCheckInterval = "online-check-interval"
	FlagSyncInterval        = "sync-interval"
	FlagRequestTimeout      = "request-timeout"
	FlagMaxRetries          = "max-retries"
	FlagEntryPullWindow     = "entry-pull-window"
	FlagRPS                 = "rps"
	FlagLogFile             = "log-file"
	FlagLogLevel            = "log-level"
)

// RegisterFlags defines the configuration flags on fs with the built-in
// defaults shown in the help output.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringP(FlagConfig, "c", "", "path to a JSON config file")
	fs.StringP(FlagServer, "a", d.ServerURL, "base URL of the nutrition server")
	fs.String(FlagToken, d.AuthToken, "bearer token for the server")
	fs.StringP(FlagOwner, "u", d.OwnerID, "id of the user whose data is synced")
	fs.String(FlagDB, d.DBPath, "path to the local database")
	fs.DurationP(FlagOnlineCheckInterval, "i", d.OnlineCheckInterval, "how often server reachability is checked")
	fs.Duration(FlagSyncInterval, d.SyncInterval, "interval between background syncs in watch mode")
	fs.Duration(FlagRequestTimeout, d.RequestTimeout, "timeout of a single server request")
	fs.Int(FlagMaxRetries, d.MaxRetries, "failed replays before an outbox item needs attention")
	fs.Duration(FlagEntryPullWindow, d.EntryPullWindow, "how far back dated records are pulled")
	fs.Float64(FlagRPS, d.RequestsPerSecond, "client-side request rate limit, 0 disables it")
	fs.String(FlagLogFile, d.LogFile, "write JSON logs to this rotating file instead of stderr")
	fs.String(FlagLogLevel, d.LogLevel, "log level: debug, info, warn or error")
}

// Load builds the configuration from defaults, the JSON file named by
// --config, and the flags the user set explicitly, in that order.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	path, err := fs.GetString(FlagConfig)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.LoadJSON(path); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		if err == nil {
			err = cfg.applyFlag(fs, f.Name)
		}
	})
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyFlag(fs *pflag.FlagSet, name string) error {
	var err error
	switch name {
	case FlagServer:
		c.ServerURL, err = fs.GetString(name)
	case FlagToken:
		c.AuthToken, err = fs.GetString(name)
	case FlagOwner:
		c.OwnerID, err = fs.GetString(name)
	case FlagDB:
		c.DBPath, err = fs.GetString(name)
	case FlagOnlineCheckInterval:
		c.OnlineCheckInterval, err = fs.GetDuration(name)
	case FlagSyncInterval:
		c.SyncInterval, err = fs.GetDuration(name)
	case FlagRequestTimeout:
		c.RequestTimeout, err = fs.GetDuration(name)
	case FlagMaxRetries:
		c.MaxRetries, err = fs.GetInt(name)
	case FlagEntryPullWindow:
		c.EntryPullWindow, err = fs.GetDuration(name)
	case FlagRPS:
		c.RequestsPerSecond, err = fs.GetFloat64(name)
	case FlagLogFile:
		c.LogFile, err = fs.GetString(name)
	case FlagLogLevel:
		c.LogLevel, err = fs.GetString(name)
	}
	return err
}
