package api

import (
	"net/http"
	"time"

	"github.com/snarg/zmeta/internal/config"
	"github.com/snarg/zmeta/internal/metrics"
	"github.com/snarg/zmeta/internal/schema"
)

// HealthHandler serves GET /healthz: counters, rate windows, last-packet
// age, WS queue-max, auth mode, and the supported schema version set.
// It always returns 200 with a fixed status of "healthy"; the counters in
// the body are what show the engine's state.
type HealthHandler struct {
	metrics   *metrics.Registry
	cfg       *config.Config
	startTime time.Time
}

func NewHealthHandler(reg *metrics.Registry, cfg *config.Config, startTime time.Time) *HealthHandler {
	return &HealthHandler{metrics: reg, cfg: cfg, startTime: startTime}
}

// HealthResponse is GET /healthz's body.
type HealthResponse struct {
	Status                 string           `json:"status"`
	UptimeSeconds          float64          `json:"uptime_seconds"`
	UDPReceivedTotal       int64            `json:"udp_received_total"`
	ValidatedTotal         int64            `json:"validated_total"`
	DroppedTotal           int64            `json:"dropped_total"`
	AlertsTotal            int64            `json:"alerts_total"`
	SuppressedTotal        int64            `json:"suppressed_total"`
	WSSentTotal            int64            `json:"ws_sent_total"`
	WSDroppedTotal         int64            `json:"ws_dropped_total"`
	RecorderDroppedTotal   int64            `json:"recorder_dropped_total"`
	SequenceCounter        int64            `json:"sequence_counter"`
	AdapterCounts          map[string]int64 `json:"adapter_counts"`
	EPS1s                  float64          `json:"eps_1s"`
	EPS10s                 float64          `json:"eps_10s"`
	LastPacketAgeSeconds   *float64         `json:"last_packet_age_seconds"`
	WSQueueMax             int              `json:"ws_queue_max"`
	AuthMode               string           `json:"auth_mode"`
	SupportedSchemaVersions []string        `json:"supported_schema_versions"`
	WSSubscribers          int              `json:"ws_subscribers"`
}

// SubscriberCounter is the subset of hub.Hub the health handler reads.
type SubscriberCounter interface {
	SubscriberCount() int
}

func (h *HealthHandler) ServeHTTP(subscribers SubscriberCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := h.metrics.Snapshot()

		authMode := "none"
		if h.cfg.AuthEnabled() {
			authMode = "shared_secret"
		}

		var ageSeconds *float64
		if age, ok := h.metrics.LastPacketAge(); ok {
			s := age.Seconds()
			ageSeconds = &s
		}

		versions := make([]string, 0, len(schema.SupportedSchemaVersions))
		for v := range schema.SupportedSchemaVersions {
			versions = append(versions, v)
		}

		wsSubs := 0
		if subscribers != nil {
			wsSubs = subscribers.SubscriberCount()
		}

		resp := HealthResponse{
			Status:                  "healthy",
			UptimeSeconds:           time.Since(h.startTime).Seconds(),
			UDPReceivedTotal:        snap.UDPReceivedTotal,
			ValidatedTotal:          snap.ValidatedTotal,
			DroppedTotal:            snap.DroppedTotal,
			AlertsTotal:             snap.AlertsTotal,
			SuppressedTotal:         snap.SuppressedTotal,
			WSSentTotal:             snap.WSSentTotal,
			WSDroppedTotal:          snap.WSDroppedTotal,
			RecorderDroppedTotal:    snap.RecorderDropped,
			SequenceCounter:         snap.SequenceCounter,
			AdapterCounts:           snap.AdapterCounts,
			EPS1s:                   h.metrics.EPS(1 * time.Second),
			EPS10s:                  h.metrics.EPS(10 * time.Second),
			LastPacketAgeSeconds:    ageSeconds,
			WSQueueMax:              h.cfg.WSQueue,
			AuthMode:                authMode,
			SupportedSchemaVersions: versions,
			WSSubscribers:           wsSubs,
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}
