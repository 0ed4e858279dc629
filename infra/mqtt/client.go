// Package mqtt connects the controller to the installation: it consumes
// grid, battery and state-of-charge telemetry and publishes the battery
// setpoint.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/bvweerd/battery-controller/core/model"
	"github.com/bvweerd/battery-controller/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	UseTLS      bool   `json:"use_tls"`
	ClientCert  string `json:"client_cert"`
	ClientKey   string `json:"client_key"`
	CABundle    string `json:"ca_bundle"`
	// TelemetryStaleAfter bounds how old a grid/battery reading may be
	// before the tactical loop treats telemetry as unavailable.
	TelemetryStaleAfter time.Duration `json:"telemetry_stale_after"`
	// SoCStaleAfter bounds how old a SoC reading may be before planning
	// falls back to the persisted value.
	SoCStaleAfter time.Duration `json:"soc_stale_after"`
	TLSConfig     *tls.Config   `json:"-"`
}

// SetDefaults applies the standard topics and freshness windows.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "battery"
	}
	if c.ClientID == "" {
		c.ClientID = "battery-controller"
	}
	if c.TelemetryStaleAfter == 0 {
		c.TelemetryStaleAfter = 30 * time.Second
	}
	if c.SoCStaleAfter == 0 {
		c.SoCStaleAfter = 10 * time.Minute
	}
}

// Validate checks the connection parameters.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("%w: mqtt broker is required", model.ErrConfig)
	}
	return nil
}

// topic names under the prefix.
const (
	topicGridPower    = "telemetry/grid_power"
	topicBatteryPower = "telemetry/battery_power"
	topicSoC          = "telemetry/soc"
	topicSetpoint     = "setpoint/power"
	topicStatus       = "status"
)

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

// reading is one retained telemetry value.
type reading struct {
	value float64
	at    time.Time
}

// Client is the MQTT-backed telemetry source and setpoint publisher.
type Client struct {
	cli pahoClient
	cfg Config
	log logger.Logger

	mu      sync.Mutex
	grid    reading
	battery reading
	soc     reading

	now func() time.Time
}

// Connect dials the broker and subscribes to the telemetry topics. The
// broker keeps an "offline" status retained via the last-will message.
func Connect(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New("mqtt_client")
	c := &Client{cfg: cfg, log: log, now: time.Now}

	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnConnect = func(pc paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		subs := map[string]paho.MessageHandler{
			cfg.topic(topicGridPower):    c.onReading(&c.grid),
			cfg.topic(topicBatteryPower): c.onReading(&c.battery),
			cfg.topic(topicSoC):          c.onReading(&c.soc),
		}
		for topic, handler := range subs {
			if token := pc.Subscribe(topic, cfg.QoS, handler); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", topic, token.Error())
			}
		}
		if token := pc.Publish(cfg.topic(topicStatus), cfg.QoS, true, "online"); token.Wait() && token.Error() != nil {
			log.Errorf("publish status: %v", token.Error())
		}
	}
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
	c.cli = cli
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
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
	opts.SetWill(cfg.topic(topicStatus), "offline", cfg.QoS, true)
	return opts, nil
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

func (c Config) topic(suffix string) string {
	return c.TopicPrefix + "/" + suffix
}

// onReading parses a numeric payload into the given slot.
func (c *Client) onReading(slot *reading) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		v, err := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload())), 64)
		if err != nil {
			c.log.Warnf("ignoring payload on %s: %v", msg.Topic(), err)
			return
		}
		c.mu.Lock()
		*slot = reading{value: v, at: c.now()}
		c.mu.Unlock()
	}
}

// Measurement returns the latest grid and battery readings. ok is false
// when either reading is missing or older than the freshness window.
func (c *Client) Measurement() (model.LiveMeasurement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.cfg.TelemetryStaleAfter)
	if c.grid.at.Before(cutoff) || c.battery.at.Before(cutoff) {
		return model.LiveMeasurement{}, false
	}
	at := c.grid.at
	if c.battery.at.After(at) {
		at = c.battery.at
	}
	return model.LiveMeasurement{
		GridPowerW:    c.grid.value,
		BatteryPowerW: c.battery.value,
		Time:          at,
	}, true
}

// SoC returns the latest state-of-charge reading in Wh.
func (c *Client) SoC(context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.soc.at.Before(c.now().Add(-c.cfg.SoCStaleAfter)) {
		return 0, fmt.Errorf("%w: no fresh soc reading on %s", model.ErrSensorUnavailable, c.cfg.topic(topicSoC))
	}
	return c.soc.value, nil
}

// Setpoint is the published control message.
type Setpoint struct {
	TargetPowerW float64 `json:"target_power_w"`
	Mode         string  `json:"mode"`
	Timestamp    int64   `json:"timestamp"`
}

// PublishSetpoint sends the battery power request, retained so the
// installation can recover the last setpoint after its own restart.
func (c *Client) PublishSetpoint(targetW float64, mode model.ControlMode) error {
	payload, err := json.Marshal(Setpoint{
		TargetPowerW: targetW,
		Mode:         mode.String(),
		Timestamp:    c.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	token := c.cli.Publish(c.cfg.topic(topicSetpoint), c.cfg.QoS, true, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing setpoint: %w", token.Error())
	}
	return nil
}

// Close publishes the offline status and disconnects.
func (c *Client) Close() {
	if c.cli == nil {
		return
	}
	if token := c.cli.Publish(c.cfg.topic(topicStatus), c.cfg.QoS, true, "offline"); token.Wait() && token.Error() != nil {
		c.log.Warnf("publish status: %v", token.Error())
	}
	c.cli.Disconnect(250)
}
