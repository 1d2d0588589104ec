// Package config loads the YAML configuration of the converter binaries.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/defistate/liquidity-converter-go/sandbox"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr       = "127.0.0.1:8546"
	DefaultStreamBufferSize = 100
)

// ServerConfig configures cmd/converter: the scenario it builds and where it serves it.
type ServerConfig struct {
	// ListenAddr serves JSON-RPC over HTTP and WebSocket on the same port.
	ListenAddr string `yaml:"listenAddr"`
	// MetricsAddr, if set, serves Prometheus metrics on /metrics.
	MetricsAddr      string `yaml:"metricsAddr"`
	StreamBufferSize uint   `yaml:"streamBufferSize"`
	// EnableSandboxMethods exposes the methods that act as a caller-supplied
	// account (toggleWhitelisted, transferOwnership, convert, sweep, approve)
	// and converter_mine.
	EnableSandboxMethods bool `yaml:"enableSandboxMethods"`
	// RunMigrations executes the scenario's migrations once at startup.
	RunMigrations bool           `yaml:"runMigrations"`
	Scenario      sandbox.Config `yaml:"scenario"`
}

// ConsoleConfig configures cmd/console.
type ConsoleConfig struct {
	RPCURL     string `yaml:"rpcURL"`
	BufferSize uint   `yaml:"bufferSize"`
}

func (c *ServerConfig) validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.StreamBufferSize == 0 {
		c.StreamBufferSize = DefaultStreamBufferSize
	}
	if c.MetricsAddr != "" && c.MetricsAddr == c.ListenAddr {
		return errors.New("config: metricsAddr must differ from listenAddr")
	}
	return c.Scenario.Validate()
}

func (c *ConsoleConfig) validate() error {
	if c.RPCURL == "" {
		return errors.New("config: rpcURL is required")
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultStreamBufferSize
	}
	return nil
}

// LoadServerConfig reads and validates a ServerConfig. Unknown keys are rejected.
func LoadServerConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConsoleConfig reads and validates a ConsoleConfig.
func LoadConsoleConfig(path string) (*ConsoleConfig, error) {
	var cfg ConsoleConfig
	if err := decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
