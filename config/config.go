package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/terassyi/dgtcp/packet/segment"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBroadcastTimeout = 12 * time.Second
	DefaultCommonTimeout    = 12 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaxRetries       = 10
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultTimeWait         = 2 * time.Second
	DefaultWindowSize       = 8
	DefaultSegmentSize      = 1024
)

var ErrInvalidConfig = errors.New("invalid config")

// Config holds the protocol timing and sizing parameters shared by the
// socket and the connection phases.
type Config struct {
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout"`
	CommonTimeout    time.Duration `yaml:"common_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	TimeWait         time.Duration `yaml:"time_wait"`
	WindowSize       int           `yaml:"window_size"`
	SegmentSize      int           `yaml:"segment_size"`
}

func Default() *Config {
	return &Config{
		BroadcastTimeout: DefaultBroadcastTimeout,
		CommonTimeout:    DefaultCommonTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		MaxRetries:       DefaultMaxRetries,
		PollInterval:     DefaultPollInterval,
		TimeWait:         DefaultTimeWait,
		WindowSize:       DefaultWindowSize,
		SegmentSize:      DefaultSegmentSize,
	}
}

// Load reads a yaml file on top of the defaults. Keys missing from the
// file keep their default value. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes yaml into c and validates the result.
func Parse(data []byte, c *Config) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.BroadcastTimeout <= 0 || c.CommonTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	}
	if c.TimeWait < 0 {
		return fmt.Errorf("%w: time_wait must not be negative", ErrInvalidConfig)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be at least 1", ErrInvalidConfig)
	}
	if c.WindowSize < 1 || c.WindowSize > 0xffff {
		return fmt.Errorf("%w: window_size %d out of range", ErrInvalidConfig, c.WindowSize)
	}
	if c.SegmentSize < 1 || c.SegmentSize > segment.MaxPayloadSize {
		return fmt.Errorf("%w: segment_size %d out of range", ErrInvalidConfig, c.SegmentSize)
	}
	return nil
}
