// Package config loads runtime configuration for uploadctl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file named by --config (see (*Config).LoadFile).
//  3. Command-line flags bound by the cli package, which override earlier values.
//
// # JSON schema
//
// Timeouts use timex.Duration, so values can be either strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "token": "<participant jwt>",
//	  "timeout": "2m"
//	}
package config
