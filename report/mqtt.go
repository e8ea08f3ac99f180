package report

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/arloliu/go-nodebus/logger"
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time.
var ErrPublishTimeout = errors.New("report: publish timed out")

// MQTTConfig describes the broker connection of an MQTTPublisher.
type MQTTConfig struct {
	// Broker is the broker URL, for example "tcp://localhost:1883".
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retained bool
	// Timeout bounds connect and publish; zero means 10 seconds.
	Timeout time.Duration
}

// MQTTPublisher publishes to an MQTT broker with automatic reconnect.
type MQTTPublisher struct {
	client  mqtt.Client
	cfg     MQTTConfig
	timeout time.Duration
	logger  logger.Logger
}

var _ Publisher = (*MQTTPublisher)(nil)

// NewMQTTPublisher creates a publisher; call Connect before publishing.
func NewMQTTPublisher(cfg MQTTConfig, l logger.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("report: broker must not be empty")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("report: invalid QoS %d", cfg.QoS)
	}
	if l == nil {
		l = logger.GetLogger()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("nodebus-%d", time.Now().Unix())
	}

	p := &MQTTPublisher{
		cfg:     cfg,
		timeout: cfg.Timeout,
		logger:  l.With("component", "mqtt", "broker", cfg.Broker),
	}
	if p.timeout <= 0 {
		p.timeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(p.timeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Info("nodebus: mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warn("nodebus: mqtt connection lost", "error", err)
	})
	p.client = mqtt.NewClient(opts)

	return p, nil
}

// Connect connects to the broker.
func (p *MQTTPublisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("report: connect %s: timed out", p.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("report: connect %s: %w", p.cfg.Broker, err)
	}

	return nil
}

// IsConnected reports whether the client is connected.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Publish sends payload to topic and waits for the broker.
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return ErrPublishTimeout
	}

	return token.Error()
}

// Close disconnects, waiting up to 250ms for in-flight work.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
