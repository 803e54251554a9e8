package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/AsherBond/lmstudio-go/internal/port"
	"github.com/AsherBond/lmstudio-go/internal/wire"
)

// MQTTConfig configures the MQTT transport. Each connection gets its own
// pair of topics under Prefix, keyed by SessionID, so one broker can
// carry many independent client/server pairs — the per-connection
// analogue of the teacher's per-device discovery topics.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "mqtt://127.0.0.1:1883" or
	// "mqtts://broker.example:8883".
	Broker string
	// Username/Password authenticate to the broker, if required.
	Username string
	Password string
	// Prefix namespaces this protocol's topics, e.g. "lmstudio".
	Prefix string
	// SessionID identifies this connection's topic pair.
	SessionID string
	// Logger receives connection lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// MQTT is a port.Transport over two retained-false MQTT topics: one the
// client publishes frames to (clientToServer), one the server publishes
// frames to (serverToClient). Grounded on the teacher's
// internal/mqtt.Publisher: same autopaho.ClientConfig/ConnectionManager
// wiring (OnConnectionUp re-subscribes, AddOnPublishReceived dispatches
// inbound, cm.Publish sends), repointed from Home Assistant discovery
// topics at the two frame topics this protocol needs.
type MQTT struct {
	cm     *autopaho.ConnectionManager
	outTopic string
	logger *slog.Logger

	onMessage func(wire.Frame)
	onError   func(error)
}

// inboundTopic is the topic this session receives frames on.
func inboundTopic(cfg MQTTConfig) string {
	return cfg.Prefix + "/" + cfg.SessionID + "/s2c"
}

// outboundTopic is the topic this session publishes frames to.
func outboundTopic(cfg MQTTConfig) string {
	return cfg.Prefix + "/" + cfg.SessionID + "/c2s"
}

// clientID is the paho client identifier derived from the session ID.
func clientID(cfg MQTTConfig) string {
	return "lmsclient-" + cfg.SessionID
}

// DialMQTT connects to cfg.Broker, subscribes to this session's inbound
// topic, and returns a port.Factory that wires the connection to a Port.
// Connecting and the initial subscribe happen here, synchronously, so a
// broker that's unreachable at startup fails fast rather than as a
// deferred onError call.
func DialMQTT(ctx context.Context, cfg MQTTConfig) (port.Factory, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("transport: mqtt session id must not be empty")
	}

	brokerURL, err := url.Parse(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("transport: parse mqtt broker url: %w", err)
	}

	inTopic := inboundTopic(cfg)
	outTopic := outboundTopic(cfg)

	m := &MQTT{outTopic: outTopic, logger: logger}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: cfg.Username,
		ConnectPassword: []byte(cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Info("mqtt connected to broker", "broker", cfg.Broker)
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{{Topic: inTopic, QoS: 1}},
			}); err != nil {
				logger.Error("mqtt subscribe failed", "topic", inTopic, "error", err)
			}
		},
		OnConnectError: func(err error) {
			logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID(cfg),
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("transport: mqtt connect: %w", err)
	}
	m.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		return nil, fmt.Errorf("transport: mqtt initial connection: %w", err)
	}

	return func(onMessage func(wire.Frame), onError func(error)) port.Transport {
		m.onMessage = onMessage
		m.onError = onError
		cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
			if pr.Packet.Topic != inTopic {
				return false, nil
			}
			var f wire.Frame
			if err := json.Unmarshal(pr.Packet.Payload, &f); err != nil {
				m.logger.Warn("skipping malformed mqtt frame", "error", err)
				return true, nil
			}
			m.onMessage(f)
			return true, nil
		})
		return m
	}, nil
}

// Send implements port.Transport.
func (m *MQTT) Send(f wire.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("transport: encode frame: %w", err)
	}
	if _, err := m.cm.Publish(context.Background(), &paho.Publish{
		Topic:   m.outTopic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("transport: publish frame: %w", err)
	}
	return nil
}

// HavingNoOpenCommunication implements port.Transport.
func (m *MQTT) HavingNoOpenCommunication() {
	m.logger.Debug("port has no open communications")
}

// HavingOneOrMoreOpenCommunication implements port.Transport.
func (m *MQTT) HavingOneOrMoreOpenCommunication() {
	m.logger.Debug("port has one or more open communications")
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.cm.Disconnect(ctx)
}
