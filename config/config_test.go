package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-nodebus/bus"
	"github.com/arloliu/go-nodebus/gateway"
	"github.com/arloliu/go-nodebus/line"
	"github.com/arloliu/go-nodebus/logger"
	"github.com/arloliu/go-nodebus/primary"
	"github.com/arloliu/go-nodebus/report"
	"github.com/arloliu/go-nodebus/secondary"
)

const primaryYAML = `
role: primary
log:
  level: debug
line:
  device: /dev/ttyUSB0
  baud: 19200
primary:
  max_children: 16
  socket_timeout_ms: 250
gateway:
  listen: ":7000"
mqtt:
  broker: tcp://localhost:1883
  topic_prefix: plant/line1
  qos: 1
metrics:
  listen: ":9100"
`

func quietLogger() logger.Logger {
	return logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false)
}

func load(t *testing.T, data string) *Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "nodebus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	Normalize(cfg)

	return cfg
}

func TestLoad_Primary(t *testing.T) {
	cfg := load(t, primaryYAML)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, RolePrimary, cfg.Role)
	assert.Equal(t, 19200, cfg.Line.Baud)
	assert.Equal(t, 16, cfg.Primary.MaxChildren)
	assert.Equal(t, primary.DefaultAckMultiplier, cfg.Primary.AckMultiplier)
	assert.Equal(t, gateway.DefaultMaxSessions, cfg.Gateway.MaxSessions)
	assert.Equal(t, "plant/line1", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	// 11 bits at 19200 baud, rounded up.
	assert.Equal(t, 573*time.Microsecond, cfg.Line.ByteTime())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Parse([]byte("role: sim\nunknown_key: 1\n"))
	require.Error(t, err)

	_, err = Parse([]byte("role: [sim\n"))
	require.Error(t, err)
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := &Config{Role: " SIM "}
	Normalize(cfg)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, RoleSim, cfg.Role)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, line.DefaultBaudRate, cfg.Line.Baud)
	assert.Equal(t, bus.MaxChildren, cfg.Primary.MaxChildren)
	assert.InDelta(t, secondary.DefaultHelloProbability, cfg.Secondary.HelloProbability, 0)
	assert.Equal(t, report.DefaultTopicPrefix, cfg.MQTT.TopicPrefix)
	assert.Equal(t, DefaultSimNodes, cfg.Sim.Nodes)

	Normalize(nil)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown role", func(c *Config) { c.Role = "observer" }},
		{"primary without device", func(c *Config) { c.Role = RolePrimary }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"baud too low", func(c *Config) { c.Line.Baud = 10 }},
		{"negative byte time", func(c *Config) { c.Line.ByteTimeUs = -1 }},
		{"too many children", func(c *Config) { c.Primary.MaxChildren = bus.MaxChildren + 1 }},
		{"negative ack multiplier", func(c *Config) { c.Primary.AckMultiplier = -1 }},
		{"negative scan interval", func(c *Config) { c.Primary.ScanIntervalMs = -5 }},
		{"hello probability above one", func(c *Config) { c.Secondary.HelloProbability = 2 }},
		{"huge secondary burst", func(c *Config) { c.Secondary.MaxBurst = secondary.MaxBurst + 1 }},
		{"gateway on secondary", func(c *Config) {
			c.Role = RoleSecondary
			c.Line.Device = "/dev/ttyS0"
			c.Gateway.Listen = ":7000"
		}},
		{"mqtt qos", func(c *Config) {
			c.MQTT.Broker = "tcp://localhost:1883"
			c.MQTT.QoS = 3
		}},
		{"metrics path", func(c *Config) {
			c.Metrics.Listen = ":9100"
			c.Metrics.Path = "metrics"
		}},
		{"too many sim nodes", func(c *Config) { c.Sim.Nodes = bus.MaxChildren + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Role: RoleSim}
			Normalize(cfg)
			tt.mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}

	require.Error(t, Validate(nil))
}

func TestOptions_Build(t *testing.T) {
	cfg := load(t, primaryYAML)
	require.NoError(t, Validate(cfg))
	l := quietLogger()

	lcfg, err := line.NewConfig(cfg.Line.LineOptions(l)...)
	require.NoError(t, err)
	assert.Equal(t, line.Tick(573), lcfg.ByteTime())

	pcfg, err := primary.NewConfig(cfg.Primary.Options(l)...)
	require.NoError(t, err)
	assert.Equal(t, 16, pcfg.MaxChildren())
	assert.Equal(t, 250*time.Millisecond, pcfg.SocketTimeout())

	scfg, err := secondary.NewConfig(cfg.Secondary.Options(l)...)
	require.NoError(t, err)
	assert.InDelta(t, secondary.DefaultHelloProbability, scfg.HelloProbability(), 0)

	gcfg, err := gateway.NewConfig(cfg.Gateway.Options(l)...)
	require.NoError(t, err)
	assert.Equal(t, gateway.DefaultHandshakeTimeout, gcfg.HandshakeTimeout())

	rcfg, err := report.NewConfig(cfg.MQTT.ReporterOptions(l)...)
	require.NoError(t, err)
	assert.Equal(t, "plant/line1", rcfg.TopicPrefix())
	assert.Equal(t, byte(1), cfg.MQTT.Publisher().QoS)
}

func TestLineConfig_ByteTimeOverride(t *testing.T) {
	c := LineConfig{Baud: 9600, ByteTimeUs: 100}
	assert.Equal(t, 100*time.Microsecond, c.ByteTime())

	lcfg, err := line.NewConfig(c.LineOptions(quietLogger())...)
	require.NoError(t, err)
	assert.Equal(t, line.Tick(100), lcfg.ByteTime())
}
