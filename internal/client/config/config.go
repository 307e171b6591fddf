package config

import "time"

// Config holds runtime settings for uploadctl.
//
// Fields:
//   - ServerURL: base URL of the upload API.
//   - Token: participant bearer token.
//   - Timeout: overall HTTP timeout of one request, including synchronous completion.
type Config struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Token = ""
	c.Timeout = 2 * time.Minute
}
