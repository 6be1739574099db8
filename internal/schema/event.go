// Package schema defines the canonical sensor event and strict validation
// against it. Adaptation of foreign payloads into this shape lives in
// internal/adapters; this package only knows the canonical form.
package schema

import (
	"encoding/json"
	"time"
)

// SupportedSchemaVersions is the set of schema_version values the strict
// validator accepts on the wire. "1.1" payloads never reach here directly:
// the adapter layer projects them to "1.0" before this package sees them.
var SupportedSchemaVersions = map[string]bool{
	"1.0": true,
}

// KnownModalities is the set of sensor modalities the canonical event
// accepts, compared after lower-casing.
var KnownModalities = map[string]bool{
	"thermal":  true,
	"rf":       true,
	"eo":       true,
	"ir":       true,
	"acoustic": true,
}

// Location is the canonical event's required position.
type Location struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Alt *float64 `json:"alt,omitempty"`
}

// Orientation is optional platform attitude.
type Orientation struct {
	Yaw   *float64 `json:"yaw,omitempty"`
	Pitch *float64 `json:"pitch,omitempty"`
	Roll  *float64 `json:"roll,omitempty"`
}

// Data carries the modality-specific observation payload. Value is left as
// json.RawMessage so scalars, strings, and nested objects all round-trip
// without the canonical event needing a modality-specific Go type.
type Data struct {
	Type       string          `json:"type"`
	Value      json.RawMessage `json:"value"`
	Units      string          `json:"units,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
}

// Provenance, TransportHealth, SecurityStamp, and FusionContext are the
// optional 1.1-family supplements carried through unvalidated, apart from
// the [0,1] bound Validate applies to fusion.trust_score: present on the
// wire if the producer sends them, dropped silently if it doesn't.
type Provenance struct {
	Validated      *bool  `json:"validated,omitempty"`
	EdgePromoted   *bool  `json:"edge_promoted,omitempty"`
	CollapseMode   *bool  `json:"collapse_mode,omitempty"`
	ExportRedacted *bool  `json:"export_redacted,omitempty"`
	SourceFormat   string `json:"source_format,omitempty"`
	SensorMake     string `json:"sensor_make,omitempty"`
	SensorModel    string `json:"sensor_model,omitempty"`
	SensorSerial   string `json:"sensor_serial,omitempty"`
	Firmware       string `json:"firmware,omitempty"`
	CalibrationID  string `json:"calibration_id,omitempty"`
}

type TransportHealth struct {
	Link      string   `json:"link,omitempty"`
	LatencyMs *float64 `json:"latency_ms,omitempty"`
	LossPct   *float64 `json:"loss_pct,omitempty"`
	JitterMs  *float64 `json:"jitter_ms,omitempty"`
	RSSIDbm   *float64 `json:"rssi_dbm,omitempty"`
	SNRDb     *float64 `json:"snr_db,omitempty"`
}

type SecurityStamp struct {
	Sig    string `json:"sig,omitempty"`
	SigAlg string `json:"sig_alg,omitempty"`
	KeyID  string `json:"key_id,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

type FusionContext struct {
	GraphEntityID    string   `json:"graph_entity_id,omitempty"`
	RedundancyCount  *int     `json:"redundancy_count,omitempty"`
	TrustScore       *float64 `json:"trust_score,omitempty"`
	TaskRef          string   `json:"task_ref,omitempty"`
}

// Event is the canonical sensor observation record. It is treated
// as immutable once constructed; callers that need a modified copy build a
// new value rather than mutating one in place.
type Event struct {
	Timestamp     time.Time        `json:"timestamp"`
	SensorID      string           `json:"sensor_id"`
	Modality      string           `json:"modality"`
	Location      Location         `json:"location"`
	Orientation   *Orientation     `json:"orientation,omitempty"`
	Data          Data             `json:"data"`
	PID           string           `json:"pid,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Note          string           `json:"note,omitempty"`
	SourceFormat  string           `json:"source_format"`
	SchemaVersion string           `json:"schema_version"`
	Sequence      *int64           `json:"sequence,omitempty"`

	StreamID     string           `json:"stream_id,omitempty"`
	BundleID     string           `json:"bundle_id,omitempty"`
	PartitionKey string           `json:"partition_key,omitempty"`
	Provenance   *Provenance      `json:"provenance,omitempty"`
	Transport    *TransportHealth `json:"transport,omitempty"`
	Security     *SecurityStamp   `json:"security,omitempty"`
	Fusion       *FusionContext   `json:"fusion,omitempty"`
}
