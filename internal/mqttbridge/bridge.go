// Package mqttbridge treats an MQTT broker connection as one more
// notification-socket client (spec.md §4.4's protocol already treats
// rotation completions as "another client"; this applies the same
// generalization to an MQTT sink). It dials the notification socket
// like any other client, subscribes to the conditions the operator
// configured, and republishes every delivered Notification as a
// retained JSON message.
package mqttbridge

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/events"
	"github.com/lttng/notifd/internal/trigobj"
)

// Subscription pairs a condition the bridge subscribes to with the
// trigger name used to build its MQTT topic.
type Subscription struct {
	Condition   *trigobj.Condition
	TriggerName string
}

// WireNotification is the JSON shape published to MQTT for one
// delivered notification — a human/dashboard-readable projection of
// the wire Notification, not the binary protocol form.
type WireNotification struct {
	TriggerName    string `json:"trigger_name"`
	ConditionKind  uint8  `json:"condition_kind"`
	EvaluationKind uint8  `json:"evaluation_kind"`
	UsedBytes      uint64 `json:"used_bytes,omitempty"`
	Capacity       uint64 `json:"capacity,omitempty"`
}

// Bridge connects to an MQTT broker (via Paho's autopaho) and a
// notifd client socket, and republishes notifications from the latter
// onto the former.
type Bridge struct {
	brokerURL string
	clientID  string
	username  string
	password  string

	conn   io.ReadWriter
	subs   []Subscription
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
	events *events.Bus
}

// SetEventBus attaches the bus a bridge_publish event is published
// onto every time a notification is successfully forwarded to the
// broker. A nil bus is fine — Bus.Publish on nil is a no-op.
func (b *Bridge) SetEventBus(bus *events.Bus) {
	b.events = bus
}

// Config is the subset of mqttbridge's connection parameters sourced
// from notifd's configuration file.
type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// New creates a bridge that will dial conn as a notification-socket
// client and cfg's broker as an MQTT publisher once Start runs.
func New(cfg Config, conn io.ReadWriter, subs []Subscription, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		brokerURL: cfg.BrokerURL,
		clientID:  cfg.ClientID,
		username:  cfg.Username,
		password:  cfg.Password,
		conn:      conn,
		subs:      subs,
		logger:    logger,
	}
}

// Start connects to the MQTT broker, subscribes on the notification
// socket, and republishes notifications until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	u, err := url.Parse(b.brokerURL)
	if err != nil {
		return fmt.Errorf("mqttbridge: parse broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{u},
		KeepAlive:       30,
		ConnectUsername: b.username,
		ConnectPassword: []byte(b.password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqttbridge: connected to broker", "broker", b.brokerURL)
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqttbridge: connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{ClientID: b.clientID},
	}
	if u.Scheme == "mqtts" || u.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqttbridge: mqtt connect: %w", err)
	}
	b.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		b.logger.Warn("mqttbridge: initial mqtt connection timed out, retrying in background", "error", err)
	}

	for _, sub := range b.subs {
		payload := sub.Condition.Serialize(nil)
		if err := client.WriteFrame(b.conn, client.Frame{Type: client.MsgSubscribe, Payload: payload}); err != nil {
			return fmt.Errorf("mqttbridge: subscribe %q: %w", sub.TriggerName, err)
		}
	}

	return b.readLoop(ctx)
}

func (b *Bridge) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		f, err := client.ReadFrame(b.conn)
		if err != nil {
			return fmt.Errorf("mqttbridge: read notification frame: %w", err)
		}
		if f.Type != client.MsgNotification {
			continue
		}
		b.handleNotification(ctx, f.Payload)
	}
}

func (b *Bridge) handleNotification(ctx context.Context, payload []byte) {
	n, err := trigobj.DeserializeNotification(payload)
	if err != nil {
		b.logger.Warn("mqttbridge: malformed notification", "error", err)
		return
	}

	triggerName := b.triggerNameFor(n.Condition)
	wire := WireNotification{
		TriggerName:    triggerName,
		ConditionKind:  uint8(n.Condition.Kind),
		EvaluationKind: uint8(n.Evaluation.Kind),
		UsedBytes:      n.Evaluation.UsedBytes,
		Capacity:       n.Evaluation.Capacity,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		b.logger.Error("mqttbridge: marshal notification", "error", err)
		return
	}

	topic := "notifd/" + triggerName
	if b.cm == nil {
		// Not yet connected (or running under test without a broker).
		b.logger.Debug("mqttbridge: dropping notification, no broker connection", "topic", topic)
		return
	}
	if _, err := b.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: body,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("mqttbridge: publish failed", "topic", topic, "error", err)
		return
	}
	b.events.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceMQTTBridge,
		Kind:      events.KindBridgePublish,
		Data:      map[string]any{"trigger_name": triggerName, "topic": topic},
	})
}

func (b *Bridge) triggerNameFor(cond *trigobj.Condition) string {
	for _, sub := range b.subs {
		if sub.Condition.Equal(cond) {
			return sub.TriggerName
		}
	}
	return "unknown"
}
