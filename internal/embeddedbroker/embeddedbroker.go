// Package embeddedbroker starts an in-process MQTT broker with
// mochi-mqtt/server/v2 so the engine can be self-contained for local
// development and the bundled simulators, without requiring an external
// broker. mochi-mqtt is carried as a direct dependency for the MQTT
// ingest bridge; this package gives it a broker to talk to when no
// external one is configured.
package embeddedbroker

import (
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
)

// Broker wraps a mochi-mqtt server bound to a single TCP listener.
type Broker struct {
	server *mqtt.Server
	addr   string
	log    zerolog.Logger
}

// New constructs a Broker listening on addr (e.g. "127.0.0.1:1883") that
// allows all connections — this is a local-development convenience, not a
// production broker, so no auth/ACL beyond AllowHook is configured.
func New(addr string, log zerolog.Logger) *Broker {
	return &Broker{
		server: mqtt.New(nil),
		addr:   addr,
		log:    log.With().Str("component", "embeddedbroker").Logger(),
	}
}

// Start registers the allow-all auth hook, adds the TCP listener, and
// begins serving in a background goroutine.
func (b *Broker) Start() error {
	if err := b.server.AddHook(new(auth.AllowHook), nil); err != nil {
		return err
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "zmeta-embedded", Address: b.addr})
	if err := b.server.AddListener(tcp); err != nil {
		return err
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			b.log.Error().Err(err).Msg("embedded mqtt broker stopped")
		}
	}()

	b.log.Info().Str("addr", b.addr).Msg("embedded mqtt broker listening")
	return nil
}

// Close shuts the broker down.
func (b *Broker) Close() error {
	return b.server.Close()
}
