package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutrisync/internal/filex"
	"github.com/dmitrijs2005/nutrisync/internal/logging"
)

// Config holds runtime settings for the nutrisync CLI.
type Config struct {
	ServerURL string
	AuthToken string
	OwnerID   string
	DBPath    string

	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	RequestTimeout      time.Duration

	// MaxRetries is the number of failed replays after which an outbox
	// item is reported as needing attention.
	MaxRetries int
	// EntryPullWindow bounds how far back dated records are pulled.
	EntryPullWindow   time.Duration
	RequestsPerSecond float64

	LogFile  string
	LogLevel string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServerURL:           "http://127.0.0.1:8080",
		DBPath:              filex.DefaultDataPath("nutrisync.db"),
		OnlineCheckInterval: 3 * time.Second,
		SyncInterval:        time.Minute,
		RequestTimeout:      15 * time.Second,
		MaxRetries:          5,
		EntryPullWindow:     30 * 24 * time.Hour,
		RequestsPerSecond:   10,
		LogLevel:            "info",
	}
}

// Validate checks value ranges. It does not require an owner; commands
// that need one check it themselves.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	if c.OnlineCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("online_check_interval must be positive, got %s", c.OnlineCheckInterval))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync_interval must be positive, got %s", c.SyncInterval))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries))
	}
	if c.EntryPullWindow < 24*time.Hour {
		errs = append(errs, fmt.Errorf("entry_pull_window must be at least 24h, got %s", c.EntryPullWindow))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second must not be negative, got %g", c.RequestsPerSecond))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
