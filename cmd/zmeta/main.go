// Command zmeta runs the sensor-telemetry ingest and fan-out engine:
// UDP/HTTP/MQTT ingest, durable NDJSON recording, rule evaluation, alert
// dedup, and WebSocket broadcast, with every collaborator constructed here
// in dependency order and wired explicitly rather than through a DI
// container.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/api"
	"github.com/snarg/zmeta/internal/config"
	"github.com/snarg/zmeta/internal/dedup"
	"github.com/snarg/zmeta/internal/embeddedbroker"
	"github.com/snarg/zmeta/internal/hub"
	"github.com/snarg/zmeta/internal/ingest"
	"github.com/snarg/zmeta/internal/metrics"
	"github.com/snarg/zmeta/internal/mqttbridge"
	"github.com/snarg/zmeta/internal/recorder"
	"github.com/snarg/zmeta/internal/rules"
	"github.com/snarg/zmeta/internal/rulewatch"
	"github.com/snarg/zmeta/internal/udpserver"
)

// version, commit, and buildTime are injected at build time via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var overrides config.Overrides
	var showVersion bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default: .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides ZMETA_HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides ZMETA_LOG_LEVEL)")
	flag.StringVar(&overrides.UDPHost, "udp-host", "", "UDP listen host (overrides ZMETA_UDP_HOST)")
	flag.StringVar(&overrides.RulesFile, "rules-file", "", "Rule file path (overrides ZMETA_RULES_FILE)")
	flag.StringVar(&overrides.RecordDir, "record-dir", "", "NDJSON record directory (overrides ZMETA_RECORD_DIR)")
	flag.StringVar(&overrides.MQTTBrokerURL, "mqtt-url", "", "MQTT broker URL (overrides ZMETA_MQTT_BROKER_URL)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s (commit=%s, built=%s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("zmeta starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics registry: owns the sequence counter, counters, and EPS ring.
	reg := metrics.New()

	// Rule engine: loaded once at startup, hot-reloadable via POST
	// /rules/reload or rulewatch's fsnotify-driven reload.
	ruleEngine := rules.NewEngine(cfg.RulesFile)
	if err := ruleEngine.Load(); err != nil {
		log.Fatal().Err(err).Str("rules_file", cfg.RulesFile).Msg("failed to load rule file")
	}
	log.Info().Str("rules_file", cfg.RulesFile).Int("count", len(ruleEngine.Rules())).Msg("rules loaded")

	watcher := rulewatch.New(cfg.RulesFile, ruleEngine, log)
	if err := watcher.Start(ctx.Done()); err != nil {
		log.Warn().Err(err).Msg("rule file watcher failed to start; hot reload via file edit disabled")
	} else {
		defer watcher.Stop()
	}

	deduper := dedup.New(dedup.DefaultTTL, dedup.DefaultMaxKeys)

	// WebSocket hub: owns the subscriber registry exclusively.
	wsHub := hub.New(reg, log, hub.WithQueueSize(cfg.WSQueue))

	// Recorder: owns the current NDJSON file handle and its queue exclusively.
	var recOpts []recorder.Option
	if retention, ok, err := cfg.RecorderRetention(); err != nil {
		log.Fatal().Err(err).Msg("invalid recorder retention")
	} else if ok {
		recOpts = append(recOpts, recorder.WithRetention(retention))
		log.Info().Dur("retention", retention).Msg("recorder retention pruning enabled")
	}
	rec := recorder.New(cfg.RecordDir, reg, log, recOpts...)
	recCtx, cancelRec := context.WithCancel(context.Background())
	go rec.Run(recCtx)
	defer func() {
		cancelRec()
		rec.Stop()
	}()

	pipeline := ingest.New(wsHub, rec, ruleEngine, deduper, reg, log)

	// UDP ingest transport.
	udpAddr := fmt.Sprintf("%s:%d", cfg.UDPHost, cfg.UDPPort)
	udpSrv := udpserver.New(udpAddr, pipeline, reg, log, udpserver.WithQueueSize(cfg.UDPQueueMax))
	udpErrCh := make(chan error, 1)
	go func() {
		udpErrCh <- udpSrv.Run(ctx)
	}()

	// Optional embedded MQTT broker for local development and the bundled
	// simulators.
	var broker *embeddedbroker.Broker
	brokerURL := cfg.MQTTBrokerURL
	if brokerURL == "" && cfg.MQTTEmbed {
		broker = embeddedbroker.New(cfg.MQTTEmbedAddr, log)
		if err := broker.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start embedded mqtt broker")
		}
		defer broker.Close()
		brokerURL = "tcp://127.0.0.1" + cfg.MQTTEmbedAddr
	}

	// Optional MQTT ingest bridge, the third transport alongside UDP/HTTP.
	var mqttBridge *mqttbridge.Bridge
	if brokerURL != "" {
		mqttBridge, err = mqttbridge.Connect(mqttbridge.Options{
			BrokerURL: brokerURL,
			ClientID:  cfg.MQTTClientID,
			Topics:    cfg.MQTTTopics,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log,
		}, pipeline)
		if err != nil {
			log.Fatal().Err(err).Str("broker", brokerURL).Msg("failed to connect mqtt bridge")
		}
		defer mqttBridge.Close()
		log.Info().Str("broker", brokerURL).Strs("topics", []string{cfg.MQTTTopics}).Msg("mqtt ingest bridge connected")
	} else {
		log.Info().Msg("mqtt ingest bridge not configured")
	}

	if cfg.AuthEnabled() {
		log.Info().Str("header", cfg.AuthHeader).Msg("shared-secret auth enabled")
	} else {
		log.Warn().Msg("ZMETA_SHARED_SECRET not set — ingest and ws endpoints are unauthenticated")
	}

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Pipeline:  pipeline,
		Hub:       wsHub,
		Recorder:  rec,
		Rules:     ruleEngine,
		Metrics:   reg,
		Log:       httpLog,
		StartTime: startTime,
	})

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- srv.Start()
	}()

	log.Info().
		Str("http_addr", cfg.HTTPAddr).
		Str("udp_addr", udpAddr).
		Dur("startup_ms", time.Since(startTime)).
		Msg("zmeta ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-httpErrCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	case err := <-udpErrCh:
		if err != nil {
			log.Error().Err(err).Msg("udp server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("zmeta stopped")
}
