// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/momentics/secure-ws/client"
	"github.com/momentics/secure-ws/server"
)

// EngineConfig is the TOML-loadable top-level configuration covering
// both endpoint roles.
type EngineConfig struct {
	Server ServerConfig `toml:"server"`
	Client ClientConfig `toml:"client"`
}

// ServerConfig mirrors the server role's tunables.
type ServerConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	CertFile       string   `toml:"cert_file"`
	KeyFile        string   `toml:"key_file"`
	Subprotocols   []string `toml:"subprotocols"`
	EnableDeflate  bool     `toml:"enable_deflate"`
	ReadBufferSize int      `toml:"read_buffer_size"`
	WorkerPoolSize int      `toml:"worker_pool_size"`
	RateLimit      float64  `toml:"rate_limit"`
	RateBurst      int      `toml:"rate_burst"`
}

// ClientConfig mirrors the client role's tunables. Durations are in
// seconds for readable config files.
type ClientConfig struct {
	URL                   string   `toml:"url"`
	Subprotocols          []string `toml:"subprotocols"`
	EnableCompression     bool     `toml:"enable_compression"`
	KeepaliveSeconds      int      `toml:"keepalive_seconds"`
	PongTimeoutSeconds    int      `toml:"pong_timeout_seconds"`
	ReconnectMax          int      `toml:"reconnect_max"`
	ReconnectDelaySeconds int      `toml:"reconnect_delay_seconds"`
}

// Load parses an EngineConfig from a TOML file.
func Load(path string) (*EngineConfig, error) {
	var cfg EngineConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// ToServerConfig maps onto the server package's config, starting from
// its defaults so unset TOML keys keep sensible values.
func (c *ServerConfig) ToServerConfig() *server.Config {
	cfg := server.DefaultConfig()
	if c.ListenAddr != "" {
		cfg.ListenAddr = c.ListenAddr
	}
	cfg.CertFile = c.CertFile
	cfg.KeyFile = c.KeyFile
	cfg.Subprotocols = c.Subprotocols
	cfg.EnableDeflate = c.EnableDeflate
	if c.ReadBufferSize > 0 {
		cfg.ReadBufferSize = c.ReadBufferSize
	}
	if c.WorkerPoolSize > 0 {
		cfg.WorkerPoolSize = c.WorkerPoolSize
	}
	cfg.RateLimit = c.RateLimit
	if c.RateBurst > 0 {
		cfg.RateBurst = c.RateBurst
	}
	return cfg
}

// ToClientConfig maps onto the client package's config.
func (c *ClientConfig) ToClientConfig() client.Config {
	return client.Config{
		URL:               c.URL,
		Subprotocols:      c.Subprotocols,
		EnableCompression: c.EnableCompression,
		KeepaliveInterval: time.Duration(c.KeepaliveSeconds) * time.Second,
		PongTimeout:       time.Duration(c.PongTimeoutSeconds) * time.Second,
		ReconnectMax:      c.ReconnectMax,
		ReconnectDelay:    time.Duration(c.ReconnectDelaySeconds) * time.Second,
	}
}
