// File: config/config.go
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds all configurable harness parameters.
type Config struct {
	// Files & Logging
	HomeDir        string `yaml:"homeDir"`        // Settings dir; daemon working dirs are created below it
	LogLevel       string `yaml:"logLevel"`       // debug, info, warn or error
	MessageLogging bool   `yaml:"messageLogging"` // Log every actor message (debug level)

	// Daemon lifecycle
	DaemonStartTimeout      time.Duration `yaml:"daemonStartTimeout"`      // Bound for starting the daemon process
	ConnectTimeout          time.Duration `yaml:"connectTimeout"`          // Bound for the daemon to announce itself
	AnnouncePollInterval    time.Duration `yaml:"announcePollInterval"`    // Fallback polling of the announcement file
	SendTimeout             time.Duration `yaml:"sendTimeout"`             // Write deadline of a single frame
	StopTimeout             time.Duration `yaml:"stopTimeout"`             // Grace period between terminate and kill
	ShutdownTimeout         time.Duration `yaml:"shutdownTimeout"`         // Bound for the actor system shutdown
	DaemonVersionConstraint string        `yaml:"daemonVersionConstraint"` // Accepted daemon protocol versions (semver)

	// Event feed
	EventFeedAddr string `yaml:"eventFeedAddr"` // Websocket feed address; empty disables it

	// Daemon process
	RuntimeOptions []string          `yaml:"runtimeOptions"` // KEY=VALUE environment entries for the daemon
	Properties     map[string]string `yaml:"properties"`     // Passed to the daemon as --property flags
}

// DefaultConfig returns a Config struct with default values.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return Config{
		HomeDir:  filepath.Join(home, ".harness"),
		LogLevel: "info",

		DaemonStartTimeout:      10 * time.Second,
		ConnectTimeout:          10 * time.Second,
		AnnouncePollInterval:    100 * time.Millisecond,
		SendTimeout:             5 * time.Second,
		StopTimeout:             5 * time.Second,
		ShutdownTimeout:         5 * time.Second,
		DaemonVersionConstraint: "^1.0",

		Properties: map[string]string{},
	}
}

// Load reads the YAML file at path over the defaults. Fields the file does
// not mention keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "could not parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.WithMessagef(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks that every field has a usable value.
func (c Config) Validate() error {
	if c.HomeDir == "" {
		return errors.New("homeDir is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "logLevel")
	}
	for name, d := range map[string]time.Duration{
		"daemonStartTimeout":   c.DaemonStartTimeout,
		"connectTimeout":       c.ConnectTimeout,
		"announcePollInterval": c.AnnouncePollInterval,
		"sendTimeout":          c.SendTimeout,
		"stopTimeout":          c.StopTimeout,
		"shutdownTimeout":      c.ShutdownTimeout,
	} {
		if d <= 0 {
			return errors.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.DaemonVersionConstraint == "" {
		return errors.New("daemonVersionConstraint is required")
	}
	return nil
}
