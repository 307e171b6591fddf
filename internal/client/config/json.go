package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/bridgeupload/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Fields left
// out of the file keep their current values.
type JsonConfig struct {
	ServerURL *string         `json:"server_url"`
	Token     *string         `json:"token"`
	Timeout   *timex.Duration `json:"timeout"`
}

// LoadFile overlays c with the JSON file at path. An empty path is a no-op.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerURL != nil {
		c.ServerURL = *jc.ServerURL
	}
	if jc.Token != nil {
		c.Token = *jc.Token
	}
	if jc.Timeout != nil {
		c.Timeout = jc.Timeout.Duration
	}
	return nil
}
