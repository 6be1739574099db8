package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseStrict unmarshals raw into a canonical Event, validates it against
// the invariants in Validate, and requires location.lat and location.lon
// to be present. It never consults the adapter registry —
// that happens one layer up, in internal/adapters, only after this fails.
func ParseStrict(raw []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, &InvalidPayloadError{Reason: err.Error()}
	}
	if err := Validate(&evt); err != nil {
		return nil, err
	}
	var probe struct {
		Location *struct {
			Lat *float64 `json:"lat"`
			Lon *float64 `json:"lon"`
		} `json:"location"`
	}
	_ = json.Unmarshal(raw, &probe)
	if probe.Location == nil || probe.Location.Lat == nil || probe.Location.Lon == nil {
		return nil, &InvalidPayloadError{Reason: "location.lat and location.lon are required"}
	}
	return &evt, nil
}

// Validate checks the invariants a canonical event must satisfy regardless
// of how it was constructed (strict parse or adapter output).
func Validate(evt *Event) error {
	if evt.Timestamp.IsZero() {
		return &InvalidPayloadError{Reason: "timestamp is required"}
	}
	if evt.SensorID == "" {
		return &InvalidPayloadError{Reason: "sensor_id is required"}
	}
	if evt.SchemaVersion == "" {
		return &InvalidPayloadError{Reason: "schema_version is required"}
	}
	if !SupportedSchemaVersions[evt.SchemaVersion] {
		return &UnsupportedSchemaVersionError{Version: evt.SchemaVersion}
	}
	modality := strings.ToLower(evt.Modality)
	if !KnownModalities[modality] {
		return &UnknownModalityError{Modality: evt.Modality}
	}
	evt.Modality = modality
	if evt.Data.Type == "" {
		return &InvalidPayloadError{Reason: "data.type is required"}
	}
	if len(evt.Data.Value) == 0 {
		return &InvalidPayloadError{Reason: "data.value is required"}
	}
	if evt.Data.Confidence != nil && (*evt.Data.Confidence < 0 || *evt.Data.Confidence > 1) {
		return &InvalidPayloadError{Reason: fmt.Sprintf("data.confidence %v out of [0,1]", *evt.Data.Confidence)}
	}
	if evt.SourceFormat == "" {
		return &InvalidPayloadError{Reason: "source_format is required"}
	}
	if evt.Sequence != nil && *evt.Sequence < 0 {
		return &InvalidPayloadError{Reason: "sequence must be >= 0"}
	}
	if evt.Fusion != nil && evt.Fusion.TrustScore != nil {
		if *evt.Fusion.TrustScore < 0 || *evt.Fusion.TrustScore > 1 {
			return &InvalidPayloadError{Reason: fmt.Sprintf("fusion.trust_score %v out of [0,1]", *evt.Fusion.TrustScore)}
		}
	}
	return nil
}
