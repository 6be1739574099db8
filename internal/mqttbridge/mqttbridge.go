// Package mqttbridge is an optional third ingest transport alongside UDP
// and HTTP, off by default: a single subscription whose message payloads
// feed the same ingest.Pipeline UDP and HTTP use, with auto-reconnect and
// re-subscribe on connection loss.
package mqttbridge

import (
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/schema"
)

// DefaultTopics is ZMETA_MQTT_TOPICS's default.
const DefaultTopics = "zmeta/ingest/#"

// Ingester is the subset of ingest.Pipeline this bridge depends on.
type Ingester interface {
	Ingest(raw []byte, context string) (*schema.Event, error)
}

// Options configures a Bridge at construction.
type Options struct {
	BrokerURL string
	ClientID  string
	Topics    string // comma-separated; defaults to DefaultTopics
	Username  string
	Password  string
	Log       zerolog.Logger
}

// Bridge subscribes to an MQTT broker and feeds every message payload
// through an Ingester, tagged with context "mqtt".
type Bridge struct {
	conn      mqtt.Client
	topics    []string
	ingester  Ingester
	connected atomic.Bool
	log       zerolog.Logger
}

// Connect dials the broker, registers handlers, and subscribes once
// connected. The embedded-broker case (ZMETA_MQTT_EMBED=true) is handled
// by the caller starting an embeddedbroker.Broker first and pointing
// BrokerURL at its local listener.
func Connect(opts Options, ingester Ingester) (*Bridge, error) {
	b := &Bridge{
		topics:   parseTopics(opts.Topics),
		ingester: ingester,
		log:      opts.Log.With().Str("component", "mqttbridge").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost).
		SetDefaultPublishHandler(b.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	b.conn = mqtt.NewClient(clientOpts)
	token := b.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) onConnect(client mqtt.Client) {
	b.connected.Store(true)
	b.log.Info().Strs("topics", b.topics).Msg("mqtt connected, subscribing")

	filters := make(map[string]byte, len(b.topics))
	for _, t := range b.topics {
		filters[t] = 0
	}
	token := client.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		b.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (b *Bridge) onConnectionLost(_ mqtt.Client, err error) {
	b.connected.Store(false)
	b.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if _, err := b.ingester.Ingest(msg.Payload(), "mqtt"); err != nil {
		b.log.Debug().Err(err).Str("topic", msg.Topic()).Msg("mqtt payload rejected")
	}
}

// IsConnected reports the bridge's current connection state.
func (b *Bridge) IsConnected() bool {
	return b.connected.Load()
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.log.Info().Msg("disconnecting mqtt bridge")
	b.conn.Disconnect(1000)
}

func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		return []string{DefaultTopics}
	}
	return topics
}
