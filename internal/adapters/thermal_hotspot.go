package adapters

import (
	"encoding/json"
	"strings"
)

// tryThermalHotspot recognizes thermal payloads and normalizes them to the
// canonical thermal_hotspot shape, reading the temperature from the value
// itself or from the common temp_c spellings.
func tryThermalHotspot(p map[string]any) ([]byte, bool) {
	src := strings.ToLower(asString(p["source_format"]))
	modality := strings.ToLower(asString(p["modality"]))
	dtype := asString(getPath(p, "data.type"))

	isThermal := modality == "thermal" || dtype == "hotspot" || dtype == "temperature"
	if src != "simulated_json_v1" && !isThermal {
		return nil, false
	}

	var tempC float64
	var found bool
	if v, ok := asFloat(getPath(p, "data.value")); ok {
		tempC, found = v, true
	}
	if !found {
		for _, path := range []string{"data.temp_c", "data.temperature_c", "data.value.temp_c", "data.value.temperature_c"} {
			if v, ok := asFloat(getPath(p, path)); ok {
				tempC, found = v, true
				break
			}
		}
	}
	if !found {
		return nil, false
	}

	out := map[string]any{
		"timestamp":      p["timestamp"],
		"sensor_id":      stringOr(p["sensor_id"], "sim_thermal"),
		"modality":       "thermal",
		"location":       copyLocation(p),
		"orientation":    p["orientation"],
		"data":           map[string]any{"type": "thermal_hotspot", "value": map[string]any{"temp_c": tempC}},
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
