// Package mqtt adapts the Eclipse Paho client to the core bus contract. Each
// device opens its own connection, publishes its telemetry and subscribes to
// its three control topics; rejected commands are republished to the
// device's dead-letter topic.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/openride/devicesim/core/bus"
	"github.com/openride/devicesim/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker         string `json:"broker"`
	ClientIDPrefix string `json:"client_id_prefix"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	UseTLS         bool   `json:"use_tls"`
	ClientCert     string `json:"client_cert"`
	ClientKey      string `json:"client_key"`
	CABundle       string `json:"ca_bundle"`
	QoS            byte   `json:"qos"`
	ConnectTimeout int    `json:"connect_timeout_seconds"`

	// LWTTopic, when set, registers a last-will message published by the
	// broker if the device connection drops ungracefully. The device id is
	// appended as the final topic segment.
	LWTTopic   string `json:"lwt_topic"`
	LWTPayload string `json:"lwt_payload"`
	LWTQoS     byte   `json:"lwt_qos"`
	LWTRetain  bool   `json:"lwt_retain"`

	TLSConfig *tls.Config `json:"-"`
}

// SetDefaults applies connection defaults.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "devicesim"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	return nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Connector opens one Paho connection per device.
type Connector struct {
	cfg Config
	log logger.Logger
}

// NewConnector creates a Connector for the given broker configuration.
func NewConnector(cfg Config) *Connector {
	cfg.SetDefaults()
	return &Connector{cfg: cfg, log: logger.New("mqtt_connector")}
}

// Connect dials the broker and subscribes to the device's control topics.
// A failure here is fatal for the device: its loop never starts.
func (c *Connector) Connect(ctx context.Context, deviceID string) (bus.Conn, error) {
	opts, err := NewClientOptions(c.cfg, deviceID)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_" + deviceID)
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	conn := &deviceConn{
		cli:        cli,
		deviceID:   deviceID,
		qos:        c.cfg.QoS,
		log:        log,
		deliveries: make(chan bus.Delivery, 16),
		closed:     make(chan struct{}),
	}
	for _, name := range []string{bus.CmdStartRent, bus.CmdEndRent, bus.CmdKillVehicle} {
		topic := bus.ControlTopic(name, deviceID)
		if token := cli.Subscribe(topic, c.cfg.QoS, conn.onControl); token.Wait() && token.Error() != nil {
			cli.Disconnect(250)
			return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
	}
	log.Infof("connected, listening for control commands")
	return conn, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config, deviceID string) (*paho.ClientOptions, error) {
	clientID := fmt.Sprintf("%s-%s-%s", cfg.ClientIDPrefix, deviceID, uuid.NewString()[:8])
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second)
	opts.AutoReconnect = true
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic+"."+deviceID, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

type deviceConn struct {
	cli      pahoClient
	deviceID string
	qos      byte
	log      logger.Logger

	deliveries chan bus.Delivery
	closeOnce  sync.Once
	closed     chan struct{}
}

// Publish sends a serialized record. A closed connection is reported with
// bus.ErrConnClosed so the loop can distinguish fatal from transient errors.
func (c *deviceConn) Publish(topic string, payload []byte) error {
	select {
	case <-c.closed:
		return bus.ErrConnClosed
	default:
	}
	token := c.cli.Publish(topic, c.qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}

func (c *deviceConn) Commands() <-chan bus.Delivery { return c.deliveries }

// Close disconnects from the broker. Safe to call more than once.
func (c *deviceConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.cli.IsConnected() {
			c.cli.Disconnect(250)
		}
		c.log.Infof("disconnected")
	})
}

// onControl converts an inbound control message into a delivery and settles
// it with the broker side: a nacked delivery is republished to the device's
// dead-letter topic. A malformed body is treated as an empty command body;
// the command name from the topic is still honored.
func (c *deviceConn) onControl(_ paho.Client, msg paho.Message) {
	name, ok := commandFromTopic(msg.Topic())
	if !ok {
		c.log.Warnf("unidentifiable control topic %q, dead-lettering", msg.Topic())
		c.deadLetter(msg.Topic(), msg.Payload())
		return
	}
	orderID, err := decodeOrderID(msg.Payload())
	if err != nil {
		c.log.Warnf("malformed %s payload, applying with empty body: %v", name, err)
	}

	d := bus.NewDelivery(bus.Command{Name: name, Device: c.deviceID, OrderID: orderID})
	select {
	case c.deliveries <- d:
	case <-c.closed:
		return
	}
	select {
	case disp := <-d.Done():
		if disp == bus.DispositionNack {
			c.deadLetter(msg.Topic(), msg.Payload())
		}
	case <-c.closed:
	}
}

func (c *deviceConn) deadLetter(topic string, payload []byte) {
	token := c.cli.Publish(bus.DeadLetterTopic(c.deviceID), c.qos, false, payload)
	if token.Wait() && token.Error() != nil {
		c.log.Errorf("dead-letter %s: %v", topic, token.Error())
	}
}
