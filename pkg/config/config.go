// Package config provides YAML-based configuration loading for relaymesh.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// NodeID is the mesh-wide identifier of this process
	NodeID string `mapstructure:"node_id"`

	// DataDir base directory for keys and sockets
	DataDir string `mapstructure:"data_dir"`

	Log        LogConfig         `mapstructure:"log"`
	Identity   IdentityConfig    `mapstructure:"identity"`
	Net        NetConfig         `mapstructure:"net"`
	Transports []TransportConfig `mapstructure:"transports"`
	Node       NodeConfig        `mapstructure:"node"`
	Controller ControllerConfig  `mapstructure:"controller"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		NodeID:  "node-1",
		DataDir: "./data",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Filename:   "logs/relaymesh.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Identity: IdentityConfig{Alg: "ed25519"},
		Net:      NetConfig{DialBackoffInitialMS: 500, DialBackoffMaxMS: 30000, DialBackoffJitterMS: 100, HelloTTL: 5 * time.Minute},
		Transports: []TransportConfig{
			{Kind: "tcp", Listen: []string{":8888"}},
		},
		Node:       DefaultNode(),
		Controller: ControllerConfig{Socket: "./data/relaymesh.sock"},
		Metrics:    MetricsConfig{Listen: ""},
	}
}

// Load reads configuration from path (if non-empty), otherwise it searches
// common locations. Environment variables use the prefix RELAYMESH and
// `.`/`-` are replaced with `_`, e.g. RELAYMESH_NODE_POLL_INTERVAL=50ms.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RELAYMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	seedDefaults(v, cfg)

	if path == "" {
		path = os.Getenv("RELAYMESH_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relaymesh")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".relaymesh"))
		}
	}

	// a missing file is fine; defaults and env still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedDefaults registers every key so env-only configs work.
func seedDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("node_id", cfg.NodeID)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("identity.alg", cfg.Identity.Alg)
	v.SetDefault("identity.private_key", cfg.Identity.PrivateKey)
	v.SetDefault("identity.private_key_file", cfg.Identity.PrivateKeyFile)
	v.SetDefault("net.dial_backoff_initial_ms", cfg.Net.DialBackoffInitialMS)
	v.SetDefault("net.dial_backoff_max_ms", cfg.Net.DialBackoffMaxMS)
	v.SetDefault("net.dial_backoff_jitter_ms", cfg.Net.DialBackoffJitterMS)
	v.SetDefault("net.hello_ttl", cfg.Net.HelloTTL)
	v.SetDefault("transports", cfg.Transports)
	v.SetDefault("node.poll_interval", cfg.Node.PollInterval)
	v.SetDefault("node.advertise_interval", cfg.Node.AdvertiseInterval)
	v.SetDefault("node.response_ttl", cfg.Node.ResponseTTL)
	v.SetDefault("node.error_ttl", cfg.Node.ErrorTTL)
	v.SetDefault("node.inner_format", cfg.Node.InnerFormat)
	v.SetDefault("node.buffer_capacity", cfg.Node.BufferCapacity)
	v.SetDefault("node.egress_bytes_per_sec", cfg.Node.EgressBytesPerSec)
	v.SetDefault("node.max_concurrent_work", cfg.Node.MaxConcurrentWork)
	v.SetDefault("controller.socket", cfg.Controller.Socket)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	c.NodeID = strings.TrimSpace(c.NodeID)
	if c.NodeID == "" {
		return errors.New("node_id must not be empty")
	}
	if strings.ContainsAny(c.NodeID, "\n\r") {
		return fmt.Errorf("node_id %q contains a line break", c.NodeID)
	}
	for i := range c.Transports {
		c.Transports[i].Kind = strings.ToLower(strings.TrimSpace(c.Transports[i].Kind))
		if c.Transports[i].Kind == "" {
			return fmt.Errorf("transports[%d]: kind is required", i)
		}
	}
	return c.Node.validate()
}
