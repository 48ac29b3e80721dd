// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ControlConfig configures the control endpoint.
type ControlConfig struct {
	Addr       string        `yaml:"addr"`
	AckTimeout time.Duration `yaml:"ack_timeout"`
}

// TelemetryConfig configures the telemetry endpoint used by the orchestrator.
type TelemetryConfig struct {
	Addr          string        `yaml:"addr"`
	AcceptTimeout time.Duration `yaml:"accept_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// SupervisorConfig controls model loading.
type SupervisorConfig struct {
	ModelPath    string        `yaml:"model_path"`
	LoadAttempts int           `yaml:"load_attempts"`
	LoadBackoff  time.Duration `yaml:"load_backoff"`
}

// AdminConfig configures the HTTP admin API. An empty Addr disables it.
type AdminConfig struct {
	Addr   string `yaml:"addr"`
	Secret string `yaml:"secret"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// GreptimeConfig configures the GreptimeDB sample sink.
type GreptimeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"`
	BatchSize int    `yaml:"batch_size"`
}

// BridgeConfig is the root configuration for the bridge and its clients.
type BridgeConfig struct {
	Control    ControlConfig    `yaml:"control"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Admin      AdminConfig      `yaml:"admin"`
	Logging    LoggingConfig    `yaml:"logging"`
	Greptime   GreptimeConfig   `yaml:"greptime"`
}

// Default returns the configuration used when no file is given.
func Default() BridgeConfig {
	return BridgeConfig{
		Control:    ControlConfig{Addr: "127.0.0.1:8888"},
		Telemetry:  TelemetryConfig{Addr: "127.0.0.1:2222"},
		Supervisor: SupervisorConfig{ModelPath: "models/tanker.yaml", LoadAttempts: 3, LoadBackoff: time.Second},
		Logging:    LoggingConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 3},
		Greptime:   GreptimeConfig{Host: "127.0.0.1", Port: 4001, Database: "public", BatchSize: 100},
	}
}

// Load reads a YAML config, validates it against a CUE schema and applies
// environment overrides. An empty configPath yields the defaults. An empty
// cueSchemaPath skips schema validation.
func Load(configPath, cueSchemaPath string) (*BridgeConfig, error) {
	cfg := Default()
	if configPath != "" {
		if cueSchemaPath != "" {
			if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
				return nil, err
			}
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *BridgeConfig) error {
	for env, dst := range map[string]*string{
		"BRIDGE_CONTROL_ADDR":   &cfg.Control.Addr,
		"BRIDGE_TELEMETRY_ADDR": &cfg.Telemetry.Addr,
		"BRIDGE_MODEL_PATH":     &cfg.Supervisor.ModelPath,
		"BRIDGE_ADMIN_ADDR":     &cfg.Admin.Addr,
		"BRIDGE_ADMIN_SECRET":   &cfg.Admin.Secret,
		"GREPTIMEDB_ENDPOINT":   &cfg.Greptime.Host,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("GREPTIMEDB_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GREPTIMEDB_PORT: %w", err)
		}
		cfg.Greptime.Port = p
	}
	return nil
}

// Validate checks semantic constraints the schema cannot express.
func (c *BridgeConfig) Validate() error {
	var errs []error
	if c.Control.Addr == "" {
		errs = append(errs, errors.New("control.addr is required"))
	}
	if c.Telemetry.Addr == "" {
		errs = append(errs, errors.New("telemetry.addr is required"))
	}
	if c.Supervisor.ModelPath == "" {
		errs = append(errs, errors.New("supervisor.model_path is required"))
	}
	if c.Supervisor.LoadAttempts < 1 {
		errs = append(errs, fmt.Errorf("supervisor.load_attempts must be >= 1, got %d", c.Supervisor.LoadAttempts))
	}
	for name, d := range map[string]time.Duration{
		"control.ack_timeout":      c.Control.AckTimeout,
		"telemetry.accept_timeout": c.Telemetry.AcceptTimeout,
		"telemetry.read_timeout":   c.Telemetry.ReadTimeout,
		"telemetry.write_timeout":  c.Telemetry.WriteTimeout,
		"supervisor.load_backoff":  c.Supervisor.LoadBackoff,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.Greptime.Enabled && (c.Greptime.Host == "" || c.Greptime.Port <= 0) {
		errs = append(errs, errors.New("greptime.host and greptime.port are required when enabled"))
	}
	return errors.Join(errs...)
}
