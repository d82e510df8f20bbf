package config

import (
	"fmt"
	"strings"
	"time"
)

// NodeConfig tunes the routing core.
type NodeConfig struct {
	// PollInterval is how long an idle connection actor sleeps between drains.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// AdvertiseInterval is the period of unsolicited route advertisements.
	AdvertiseInterval time.Duration `mapstructure:"advertise_interval"`
	// ResponseTTL bounds how long an outstanding request waits for responses.
	ResponseTTL time.Duration `mapstructure:"response_ttl"`
	// ErrorTTL is the ttl (seconds) stamped on error responses.
	ErrorTTL int `mapstructure:"error_ttl"`
	// InnerFormat: json, cbor or proto.
	InnerFormat string `mapstructure:"inner_format"`
	// BufferCapacity is the per-peer outbound queue depth.
	BufferCapacity int `mapstructure:"buffer_capacity"`
	// EgressBytesPerSec shapes each link's pump; 0 disables shaping.
	EgressBytesPerSec int64 `mapstructure:"egress_bytes_per_sec"`
	// MaxConcurrentWork bounds running work directives.
	MaxConcurrentWork int64 `mapstructure:"max_concurrent_work"`
}

func DefaultNode() NodeConfig {
	return NodeConfig{
		PollInterval:      100 * time.Millisecond,
		AdvertiseInterval: 30 * time.Second,
		ResponseTTL:       5 * time.Minute,
		ErrorTTL:          15,
		InnerFormat:       "json",
		BufferCapacity:    1024,
		MaxConcurrentWork: 16,
	}
}

func (n *NodeConfig) validate() error {
	if n.PollInterval <= 0 {
		return fmt.Errorf("node.poll_interval must be positive, got %s", n.PollInterval)
	}
	if n.AdvertiseInterval < 0 {
		return fmt.Errorf("node.advertise_interval must not be negative")
	}
	switch strings.ToLower(n.InnerFormat) {
	case "", "json", "cbor", "proto", "protobuf":
	default:
		return fmt.Errorf("invalid node.inner_format: %q", n.InnerFormat)
	}
	if n.BufferCapacity <= 0 {
		n.BufferCapacity = 1024
	}
	if n.ErrorTTL <= 0 {
		n.ErrorTTL = 15
	}
	if n.MaxConcurrentWork <= 0 {
		n.MaxConcurrentWork = 16
	}
	return nil
}

// ControllerConfig describes the local control socket.
// On Windows Socket is a named pipe path such as \\.\pipe\relaymesh.
type ControllerConfig struct {
	Socket string `mapstructure:"socket"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}
