// Package config loads the YAML configuration of the nodebus command.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Roles.
const (
	RolePrimary   = "primary"
	RoleSecondary = "secondary"
	RoleSim       = "sim"
)

// Config is the whole command configuration.
type Config struct {
	Role      string          `yaml:"role"`
	Log       LogConfig       `yaml:"log"`
	Line      LineConfig      `yaml:"line"`
	Primary   PrimaryConfig   `yaml:"primary"`
	Secondary SecondaryConfig `yaml:"secondary"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sim       SimConfig       `yaml:"sim"`
}

// ---- LOG ----

type LogConfig struct {
	Level     string `yaml:"level"`
	AddSource bool   `yaml:"add_source"`
}

// ---- LINE ----

type LineConfig struct {
	// Device is the serial port; unused by the sim role.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// ByteTimeUs overrides the byte time derived from Baud.
	ByteTimeUs int `yaml:"byte_time_us"`
}

// ---- PRIMARY ----

type PrimaryConfig struct {
	MaxChildren     int `yaml:"max_children"`
	AckMultiplier   int `yaml:"ack_multiplier"`
	ScanIntervalMs  int `yaml:"scan_interval_ms"`
	SocketTimeoutMs int `yaml:"socket_timeout_ms"`
	MaxBurst        int `yaml:"max_burst"`
	IdleHoldoffMs   int `yaml:"idle_holdoff_ms"`
}

// ---- SECONDARY ----

type SecondaryConfig struct {
	// StorePath is the pebble directory holding the node address.
	StorePath        string  `yaml:"store_path"`
	HelloProbability float64 `yaml:"hello_probability"`
	MaxBurst         int     `yaml:"max_burst"`
	IdleHoldoffMs    int     `yaml:"idle_holdoff_ms"`
	TunnelTimeoutMs  int     `yaml:"tunnel_timeout_ms"`
	// Service is the TCP address tunnels are connected to; empty echoes.
	Service string `yaml:"service"`
}

// ---- GATEWAY ----

type GatewayConfig struct {
	// Listen enables the TCP gateway on the primary and sim roles.
	Listen             string `yaml:"listen"`
	MaxSessions        int    `yaml:"max_sessions"`
	HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms"`
}

// ---- MQTT ----

type MQTTConfig struct {
	// Broker enables the membership reporter, for example "tcp://localhost:1883".
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Retained    bool   `yaml:"retained"`
	IntervalMs  int    `yaml:"interval_ms"`
}

// ---- METRICS ----

type MetricsConfig struct {
	// Listen enables the Prometheus endpoint, for example ":9100".
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// ---- SIM ----

type SimConfig struct {
	Nodes int `yaml:"nodes"`
	// StoreDir keeps simulated node addresses in pebble under StoreDir/<node>;
	// empty keeps them in memory.
	StoreDir string `yaml:"store_dir"`
}

// Load reads and decodes the YAML file at path. Unknown keys are errors.
// The result still needs Normalize and Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	return &cfg, nil
}
