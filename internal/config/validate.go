package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PICOGPU_PORT must be 1-65535, got %d", c.Port)
	}

	if c.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("config: PollInterval must be >= 100ms, got %v", c.PollInterval)
	}

	if c.RescanInterval < 0 {
		return fmt.Errorf("config: RescanInterval must be >= 0, got %v", c.RescanInterval)
	}
	if c.RescanInterval > 0 && c.RescanInterval < c.PollInterval {
		return fmt.Errorf("config: RescanInterval must be 0 or >= PollInterval (%v), got %v", c.PollInterval, c.RescanInterval)
	}

	if c.SysfsRoot == "" {
		return fmt.Errorf("config: PICOGPU_SYSFS_ROOT must not be empty")
	}

	if c.LSPCITimeout < time.Millisecond || c.LSPCITimeout > 30*time.Second {
		return fmt.Errorf("config: LSPCITimeout must be 1ms-30s, got %v", c.LSPCITimeout)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config: PICOGPU_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: PICOGPU_LOG_LEVEL %q is not a valid level", c.LogLevel)
	}
	return level, nil
}
