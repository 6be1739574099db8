package adapters

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return m
}

func TestRFMhzAdapter(t *testing.T) {
	raw := decode(t, `{
		"timestamp":"2025-01-01T00:00:00Z","sensor_id":"s1","modality":"rf",
		"location":{"lat":42.0,"lon":-71.0},
		"data":{"type":"frequency","value":915.2,"units":"MHz"},
		"source_format":"simulated_json_v1"
	}`)

	evt, name, ok := Adapt(raw)
	if !ok {
		t.Fatal("expected rf-mhz adapter to match")
	}
	if name != "rf-mhz" {
		t.Errorf("adapter name = %q, want rf-mhz", name)
	}
	var value struct {
		FrequencyHz float64 `json:"frequency_hz"`
	}
	if err := json.Unmarshal(evt.Data.Value, &value); err != nil {
		t.Fatalf("decode data.value: %v", err)
	}
	if value.FrequencyHz != 915200000 {
		t.Errorf("frequency_hz = %v, want 915200000", value.FrequencyHz)
	}
}

func TestThermalHotspotAdapter(t *testing.T) {
	raw := decode(t, `{
		"timestamp":"2025-01-01T00:00:00Z","sensor_id":"s2",
		"location":{"lat":1,"lon":2},
		"data":{"type":"hotspot","value":41.5},
		"source_format":"simulated_json_v1"
	}`)

	evt, name, ok := Adapt(raw)
	if !ok {
		t.Fatal("expected thermal-hotspot adapter to match")
	}
	if name != "thermal-hotspot" {
		t.Errorf("adapter name = %q, want thermal-hotspot", name)
	}
	if evt.Modality != "thermal" {
		t.Errorf("modality = %q, want thermal", evt.Modality)
	}
}

func TestKLVLikeAdapter(t *testing.T) {
	raw := decode(t, `{
		"timestamp":"2025-01-01T00:00:00Z",
		"targetLatitude":10.5,"targetLongitude":20.5,"targetAltitude":100,
		"sensorType":"eo","platformHeading":90
	}`)

	evt, name, ok := Adapt(raw)
	if !ok {
		t.Fatal("expected klv-like adapter to match")
	}
	if name != "klv-like" {
		t.Errorf("adapter name = %q, want klv-like", name)
	}
	if evt.SourceFormat != "KLV" {
		t.Errorf("source_format = %q, want KLV", evt.SourceFormat)
	}
	if evt.Location.Lat != 10.5 || evt.Location.Lon != 20.5 {
		t.Errorf("location = %+v, want lat=10.5 lon=20.5", evt.Location)
	}
}

func TestV11ProjectionAdapter(t *testing.T) {
	raw := decode(t, `{
		"schema_version":"1.1",
		"timestamp":"2025-01-01T00:00:00Z","sensor_id":"rf-9","modality":"rf",
		"location":{"lat":42.0,"lon":-71.0},
		"data":{"type":"burst","freq_hz":915200000,"bw_hz":20000,"rssi_dbm":-61.5,"confidence":0.9},
		"provenance":{"source_format":"edge_node_v2","sensor_make":"acme"},
		"transport":{"link":"lte","latency_ms":41}
	}`)

	evt, name, ok := Adapt(raw)
	if !ok {
		t.Fatal("expected v1.1 adapter to match")
	}
	if name != "v1.1" {
		t.Errorf("adapter name = %q, want v1.1", name)
	}
	if evt.SchemaVersion != "1.0" {
		t.Errorf("schema_version = %q, want projection to 1.0", evt.SchemaVersion)
	}
	if evt.SourceFormat != "edge_node_v2" {
		t.Errorf("source_format = %q, want hoisted provenance.source_format", evt.SourceFormat)
	}
	if evt.Data.Type != "rf_burst" {
		t.Errorf("data.type = %q, want rf_burst", evt.Data.Type)
	}
	var value struct {
		FrequencyHz float64 `json:"frequency_hz"`
		BandwidthHz float64 `json:"bandwidth_hz"`
		RSSIDbm     float64 `json:"rssi_dbm"`
	}
	if err := json.Unmarshal(evt.Data.Value, &value); err != nil {
		t.Fatalf("decode data.value: %v", err)
	}
	if value.FrequencyHz != 915200000 || value.BandwidthHz != 20000 || value.RSSIDbm != -61.5 {
		t.Errorf("data.value = %+v, want renamed canonical keys", value)
	}
	if evt.Provenance == nil || evt.Provenance.SensorMake != "acme" {
		t.Error("expected provenance block carried through the projection")
	}
	if evt.Transport == nil || evt.Transport.Link != "lte" {
		t.Error("expected transport block carried through the projection")
	}
}

func TestAdaptNoneMatch(t *testing.T) {
	raw := decode(t, `{"garbage": true}`)
	if _, _, ok := Adapt(raw); ok {
		t.Fatal("expected no adapter to match an unrecognized payload")
	}
}
