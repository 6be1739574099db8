package adapters

import (
	"encoding/json"
	"strings"
)

// tryKLVLike recognizes KLV-style metadata dictionaries by the presence of
// any of their characteristic foreign keys and maps them to the canonical
// shape: target coordinates become the location, platform attitude becomes
// the orientation, and the sensor type doubles as the modality.
func tryKLVLike(p map[string]any) ([]byte, bool) {
	klvKeys := []string{"targetLatitude", "targetLongitude", "sensorType", "platformHeading"}
	hasAny := false
	for _, k := range klvKeys {
		if _, present := p[k]; present {
			hasAny = true
			break
		}
	}
	if !hasAny {
		return nil, false
	}

	sensorType := stringOr(p["sensorType"], "unknown")

	value := map[string]any{}
	if v, ok := p["signal_strength"]; ok {
		value["signal_strength"] = v
	}
	if v, ok := p["modulation"]; ok {
		value["modulation"] = v
	}
	if v, ok := p["sensorFOV"]; ok {
		value["fov"] = v
	}

	orientation := map[string]any{}
	if v, ok := p["platformHeading"]; ok {
		orientation["yaw"] = v
	}
	if v, ok := p["platformPitch"]; ok {
		orientation["pitch"] = v
	}
	if v, ok := p["platformRoll"]; ok {
		orientation["roll"] = v
	}

	location := map[string]any{
		"lat": floatOrZero(p["targetLatitude"]),
		"lon": floatOrZero(p["targetLongitude"]),
		"alt": floatOrZero(p["targetAltitude"]),
	}

	confidence := 1.0
	if v, ok := asFloat(p["confidence"]); ok {
		confidence = v
	}

	tags := p["tags"]
	if tags == nil {
		tags = []any{"converted", "klv"}
	}

	out := map[string]any{
		"timestamp":      p["timestamp"],
		"sensor_id":      stringOr(p["sensor_id"], "klv_source_001"),
		"modality":       strings.ToLower(sensorType),
		"location":       location,
		"orientation":    orientation,
		"data":           map[string]any{"type": sensorType, "value": value, "confidence": confidence},
		"pid":            p["pid"],
		"tags":           tags,
		"note":           stringOr(p["note"], "Converted from KLV"),
		"source_format":  "KLV",
		"schema_version": "1.0",
	}

	normalized, err := json.Marshal(out)
	if err != nil {
		return nil, false
	}
	return normalized, true
}

func floatOrZero(v any) float64 {
	f, _ := asFloat(v)
	return f
}
