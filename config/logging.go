package config

import "fmt"

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level is known.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
}
