package config

import "time"

// NetConfig contains link establishment options.
type NetConfig struct {
	DialBackoffInitialMS int `mapstructure:"dial_backoff_initial_ms"`
	DialBackoffMaxMS     int `mapstructure:"dial_backoff_max_ms"`
	DialBackoffJitterMS  int `mapstructure:"dial_backoff_jitter_ms"`
	// HelloTTL is the validity window stamped into outgoing HI frames.
	HelloTTL time.Duration `mapstructure:"hello_ttl"`
}
