// Package config loads runtime configuration for the nutrisync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see Default).
//  2. Optional JSON file selected with --config / -c.
//  3. Command-line flags set explicitly by the user.
//
// # JSON schema
//
// Durations are strings like "3s" or integer nanoseconds:
//
//	{
//	  "server_url": "https://api.example.com",
//	  "auth_token": "eyJhbGciOi...",
//	  "owner_id": "u1",
//	  "db_path": "/home/me/.config/nutrisync/nutrisync.db",
//	  "online_check_interval": "3s",
//	  "sync_interval": "1m",
//	  "request_timeout": "15s",
//	  "max_retries": 5,
//	  "entry_pull_window": "720h",
//	  "requests_per_second": 10,
//	  "log_file": "",
//	  "log_level": "info"
//	}
//
// Fields missing from the file keep their defaults. Environment variables
// are not read.
package config
