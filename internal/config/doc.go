// Package config handles configuration loading for botline.
//
// # Overview
//
// Configuration is loaded from TOML or YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from BOTLINE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/botline/botline.toml
//  3. ~/.config/botline/botline.toml
//
// Files ending in .yaml or .yml are decoded as YAML, anything else as TOML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	[directline]
//	secret = "${BOTLINE_DIRECTLINE_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	[bridge]
//	cache_ttl = "30s"
//	retry_interval = "5s"
//	dedupe_ttl = "10m"
//
// # Configuration Sections
//
//	frontend = "twitter"  # twitter, matrix
//
//	[directline]
//	secret = "${BOTLINE_DIRECTLINE_SECRET}"
//	base_url = "https://directline.botframework.com"
//	poll_interval = "2s"
//
//	[twitter]
//	bearer_token = "${BOTLINE_TWITTER_TOKEN}"
//	user_id = "1234567890"
//	poll_interval = "30s"
//
//	[matrix]
//	homeserver = "https://matrix.org"
//	user_id = "@botline:matrix.org"
//	access_token = "${BOTLINE_MATRIX_TOKEN}"
//	allowed_rooms = ["!abc:matrix.org"]
//
//	[database]
//	path = "~/.local/share/botline/ledger.db"  # empty disables the ledger
//
//	[server]
//	http_addr = "127.0.0.1:8080"  # empty disables the status endpoint
//
//	[logging]
//	level = "info"   # debug, info, warn, error
//	format = "text"  # text, json
//
//	[metrics]
//	enabled = false
//	otlp_endpoint = "localhost:4318"
//
// # Usage
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    return err
//	}
package config
