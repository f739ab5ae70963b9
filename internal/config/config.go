package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all monitor configuration values. Values come from the
// defaults, then the optional YAML file, then PICOGPU_* environment
// variables; command-line flags are applied on top by main.
type Config struct {
	Bind           string        `yaml:"bind"`            // PICOGPU_BIND, default: 0.0.0.0
	Port           int           `yaml:"port"`            // PICOGPU_PORT, default: 8080
	PollInterval   time.Duration `yaml:"poll_interval"`   // PICOGPU_POLL_INTERVAL, default: 2s
	RescanInterval time.Duration `yaml:"rescan_interval"` // PICOGPU_RESCAN_INTERVAL, default: 0 (never)
	SysfsRoot      string        `yaml:"sysfs_root"`      // PICOGPU_SYSFS_ROOT, default: /sys
	LSPCIPath      string        `yaml:"lspci_path"`      // PICOGPU_LSPCI_PATH, default: lspci
	LSPCITimeout   time.Duration `yaml:"lspci_timeout"`   // PICOGPU_LSPCI_TIMEOUT, default: 3s
	NVMLLibrary    string        `yaml:"nvml_library"`    // PICOGPU_NVML_LIBRARY, tried before the default candidates
	DisableNVML    bool          `yaml:"disable_nvml"`    // PICOGPU_DISABLE_NVML, set to any value to disable
	LogLevel       string        `yaml:"log_level"`       // PICOGPU_LOG_LEVEL, default: info
	LogFormat      string        `yaml:"log_format"`      // PICOGPU_LOG_FORMAT, text or json
	InstanceID     string        `yaml:"instance_id"`     // PICOGPU_INSTANCE_ID, generated when empty
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Bind:         "0.0.0.0",
		Port:         8080,
		PollInterval: 2 * time.Second,
		SysfsRoot:    "/sys",
		LSPCIPath:    "lspci",
		LSPCITimeout: 3 * time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load builds the configuration. path names an optional YAML file; when it
// is empty PICOGPU_CONFIG is consulted.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("PICOGPU_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	c.Bind = envOrDefault("PICOGPU_BIND", c.Bind)
	c.Port = parseInt("PICOGPU_PORT", c.Port)
	c.PollInterval = parseDuration("PICOGPU_POLL_INTERVAL", c.PollInterval)
	c.RescanInterval = parseDuration("PICOGPU_RESCAN_INTERVAL", c.RescanInterval)
	c.SysfsRoot = envOrDefault("PICOGPU_SYSFS_ROOT", c.SysfsRoot)
	c.LSPCIPath = envOrDefault("PICOGPU_LSPCI_PATH", c.LSPCIPath)
	c.LSPCITimeout = parseDuration("PICOGPU_LSPCI_TIMEOUT", c.LSPCITimeout)
	c.NVMLLibrary = envOrDefault("PICOGPU_NVML_LIBRARY", c.NVMLLibrary)
	c.LogLevel = envOrDefault("PICOGPU_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOrDefault("PICOGPU_LOG_FORMAT", c.LogFormat)
	c.InstanceID = envOrDefault("PICOGPU_INSTANCE_ID", c.InstanceID)

	// Presence alone disables NVML, matching the backend's own check.
	if _, ok := os.LookupEnv("PICOGPU_DISABLE_NVML"); ok {
		c.DisableNVML = true
	}
}

// Address returns the listen address for the HTTP server.
func (c Config) Address() string {
	return c.Bind + ":" + strconv.Itoa(c.Port)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
