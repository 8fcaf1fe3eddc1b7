// Package config loads coordinator, replica server and logging settings from
// YAML and parses replica lists.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quorumcache/internal/quorum"
	"quorumcache/internal/replica"
	"quorumcache/internal/transport"
)

// Config is the top-level configuration file.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ClientConfig configures the quorum coordinator.
type ClientConfig struct {
	// Replicas are "id=addr" entries or bare addresses, in replica set order.
	Replicas       []string      `yaml:"replicas"`
	Transport      string        `yaml:"transport"`       // http | grpc
	RequestTimeout time.Duration `yaml:"request_timeout"` // per replica
	QuorumPolicy   string        `yaml:"quorum_policy"`   // floor | majority
}

// ServerConfig configures one replica store node.
type ServerConfig struct {
	ID             string        `yaml:"id"`
	HTTPAddr       string        `yaml:"http_addr"`
	GRPCAddr       string        `yaml:"grpc_addr"`
	RateLimitQPS   float64       `yaml:"rate_limit_qps"` // 0 disables
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	SlowRequest    time.Duration `yaml:"slow_request"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"` // json | console
	OutputPaths []string `yaml:"output_paths"`
}

// Default returns a configuration with every field set.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Replicas: []string{
				"r0=http://localhost:3000",
				"r1=http://localhost:3001",
				"r2=http://localhost:3002",
			},
			Transport:      transport.KindHTTP,
			RequestTimeout: quorum.DefaultPerReplicaTimeout,
			QuorumPolicy:   quorum.PolicyFloorHalf.String(),
		},
		Server: ServerConfig{
			ID:          "r0",
			HTTPAddr:    ":3000",
			GRPCAddr:    ":4000",
			SlowRequest: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
	}
}

// Load reads a YAML file over the defaults. Fields absent from the file keep
// their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Log.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the coordinator settings.
func (c *ClientConfig) Validate() error {
	if _, err := c.ReplicaSet(); err != nil {
		return err
	}
	if c.Transport != transport.KindHTTP && c.Transport != transport.KindGRPC {
		return fmt.Errorf("client.transport must be either 'http' or 'grpc'")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("client.request_timeout must be > 0")
	}
	if _, err := quorum.ParsePolicy(c.QuorumPolicy); err != nil {
		return fmt.Errorf("client.quorum_policy: %w", err)
	}
	return nil
}

// ReplicaSet parses Replicas into an ordered set.
func (c *ClientConfig) ReplicaSet() (*replica.Set, error) {
	endpoints, err := ParseReplicas(c.Replicas)
	if err != nil {
		return nil, err
	}
	set, err := replica.NewSet(endpoints)
	if err != nil {
		return nil, fmt.Errorf("client.replicas: %w", err)
	}
	return set, nil
}

// Policy returns the parsed quorum policy.
func (c *ClientConfig) Policy() (quorum.Policy, error) {
	return quorum.ParsePolicy(c.QuorumPolicy)
}

// Validate checks the replica server settings.
func (s *ServerConfig) Validate() error {
	if s.ID == "" {
		return errors.New("server.id is required")
	}
	if s.HTTPAddr == "" && s.GRPCAddr == "" {
		return errors.New("server.http_addr or server.grpc_addr is required")
	}
	if s.RateLimitQPS < 0 {
		return errors.New("server.rate_limit_qps must be >= 0")
	}
	if s.RateLimitBurst < 0 {
		return errors.New("server.rate_limit_burst must be >= 0")
	}
	return nil
}

// Validate checks the log settings.
func (l *LogConfig) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[l.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if l.Encoding != "json" && l.Encoding != "console" {
		return fmt.Errorf("log.encoding must be either 'json' or 'console'")
	}
	return nil
}

// ParseReplicaList parses a comma-separated list of replicas in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParseReplicaList(s string) ([]replica.Endpoint, error) {
	if strings.TrimSpace(s) == "" {
		return []replica.Endpoint{}, nil
	}
	return ParseReplicas(strings.Split(s, ","))
}

// ParseReplicas parses entries of the form "id=addr". An entry without "=" is
// a bare address and gets the ID r<position>.
func ParseReplicas(entries []string) ([]replica.Endpoint, error) {
	endpoints := make([]replica.Endpoint, 0, len(entries))

	for _, part := range entries {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, addr, ok := strings.Cut(part, "=")
		if !ok {
			id, addr = fmt.Sprintf("r%d", len(endpoints)), part
		}
		id = strings.TrimSpace(id)
		addr = strings.TrimSpace(addr)

		if id == "" || addr == "" {
			return nil, fmt.Errorf("replica ID and address cannot be empty: %s", part)
		}

		endpoints = append(endpoints, replica.Endpoint{
			ID:   id,
			Addr: addr,
		})
	}

	return endpoints, nil
}
