package adapters

import (
	"encoding/json"
	"math"
	"strings"
)

// tryRFMhz recognizes RF payloads expressed in MHz and converts them to
// the canonical rf_detection shape in Hz, carrying over rssi/bandwidth/
// dwell measurements when present.
func tryRFMhz(p map[string]any) ([]byte, bool) {
	src := strings.ToLower(asString(p["source_format"]))
	modality := strings.ToLower(asString(p["modality"]))
	dtype := asString(getPath(p, "data.type"))
	units := strings.ToLower(strings.TrimSpace(asString(getPath(p, "data.units"))))
	val, isNum := asFloat(getPath(p, "data.value"))

	matchesFormat := src == "simulated_json_v1" && modality == "rf"
	matchesShape := dtype == "frequency" && units == "mhz"
	if !matchesFormat && !matchesShape {
		return nil, false
	}
	if !isNum {
		return nil, false
	}

	hz := int64(math.Round(val * 1_000_000))
	value := map[string]any{"frequency_hz": hz}
	if rssi, ok := asFloat(getPath(p, "data.rssi_dbm")); ok {
		value["rssi_dbm"] = rssi
	} else if rssi, ok := asFloat(getPath(p, "data.value.rssi_dbm")); ok {
		value["rssi_dbm"] = rssi
	}
	if bdw, ok := asFloat(getPath(p, "data.bandwidth_hz")); ok {
		value["bandwidth_hz"] = int64(bdw)
	} else if bdw, ok := asFloat(getPath(p, "data.value.bandwidth_hz")); ok {
		value["bandwidth_hz"] = int64(bdw)
	}
	if dwell, ok := asFloat(getPath(p, "data.dwell_s")); ok {
		value["dwell_s"] = dwell
	} else if dwell, ok := asFloat(getPath(p, "data.value.dwell_s")); ok {
		value["dwell_s"] = dwell
	}

	out := map[string]any{
		"timestamp":      p["timestamp"],
		"sensor_id":      stringOr(p["sensor_id"], "sim_rf"),
		"modality":       stringOr(p["modality"], "rf"),
		"location":       copyLocation(p),
		"orientation":    p["orientation"],
		"data":           map[string]any{"type": "rf_detection", "value": value},
		"pid":            p["pid"],
		"tags":           p["tags"],
		"note":           p["note"],
		"source_format":  "zmeta",
		"schema_version": "1.0",
	}
	if conf, ok := topConfidence(p); ok {
		out["data"].(map[string]any)["confidence"] = conf
	}

	normalized, err := json.Marshal(out)
	if err != nil {
		return nil, false
	}
	return normalized, true
}
