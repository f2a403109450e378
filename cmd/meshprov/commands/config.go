package commands

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backkem/meshprov/pkg/network"
	"github.com/backkem/meshprov/pkg/provisioner"
	"github.com/backkem/meshprov/pkg/transport"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file.
type Config struct {
	// Store is the path of the network store file.
	Store string `yaml:"store"`

	// LogLevel is one of disabled, error, warn, info, debug, trace.
	LogLevel string `yaml:"log_level"`

	// Timeout bounds one handshake.
	Timeout time.Duration `yaml:"timeout"`

	Network NetworkConfig `yaml:"network"`
	Device  DeviceConfig  `yaml:"device"`
}

// NetworkConfig holds defaults for new networks and the network to
// provision into.
type NetworkConfig struct {
	// ID selects the network for provision and simulate.
	ID string `yaml:"id"`

	Name string `yaml:"name"`

	// NetKey is a hex network key. A random key is generated if empty.
	NetKey   string `yaml:"net_key"`
	KeyIndex uint16 `yaml:"key_index"`
	IVIndex  uint32 `yaml:"iv_index"`

	// FirstAddress is where unicast allocation starts.
	FirstAddress uint16 `yaml:"first_address"`
}

// DeviceConfig configures the simulated device.
type DeviceConfig struct {
	Listen   string `yaml:"listen"`
	Elements uint8  `yaml:"elements"`
	UUID     string `yaml:"uuid"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Timeout:  provisioner.DefaultTimeout,
		Network: NetworkConfig{
			FirstAddress: network.FirstUnicastAddress,
		},
		Device: DeviceConfig{
			Listen:   fmt.Sprintf(":%d", transport.DefaultPort),
			Elements: 1,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that flags cannot correct later.
func (c *Config) Validate() error {
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Network.NetKey != "" {
		if _, err := parseNetKey(c.Network.NetKey); err != nil {
			return err
		}
	}
	if c.Device.Elements == 0 {
		return fmt.Errorf("device elements must be at least 1")
	}
	return nil
}

// storePath returns the store path, defaulting to ~/.meshprov/networks.cbor.
func (c *Config) storePath() (string, error) {
	if c.Store != "" {
		return c.Store, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".meshprov", "networks.cbor"), nil
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
	}
}

func parseNetKey(s string) ([network.NetKeySize]byte, error) {
	var key [network.NetKeySize]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(key) {
		return key, fmt.Errorf("network key must be %d hex bytes", len(key))
	}
	copy(key[:], b)
	return key, nil
}
