package adapters

import (
	"encoding/json"
	"strings"
)

// tryV11 projects a richer schema_version "1.1" payload down to the
// canonical 1.0 form. The 1.1 family carries a per-modality typed data
// payload and a provenance block; the projection flattens the payload into
// the generic data.value map, renames the RF field spellings to their
// canonical keys, and hoists provenance.source_format to the top level.
// The engine never emits "1.1" on the wire itself.
func tryV11(p map[string]any) ([]byte, bool) {
	if asString(p["schema_version"]) != "1.1" {
		return nil, false
	}

	modality := strings.ToLower(asString(p["modality"]))
	dataMap, _ := p["data"].(map[string]any)
	if dataMap == nil {
		return nil, false
	}

	dtype := strings.Trim(modality+"_"+stringOr(dataMap["type"], "unk"), "_")

	value := map[string]any{}
	for k, v := range dataMap {
		if k == "type" || k == "confidence" || v == nil {
			continue
		}
		value[v11ValueKey(k)] = v
	}

	data := map[string]any{"type": dtype, "value": value}
	if conf, ok := asFloat(dataMap["confidence"]); ok {
		data["confidence"] = conf
	}

	sourceFormat := asString(getPath(p, "provenance.source_format"))
	if sourceFormat == "" {
		sourceFormat = stringOr(p["source_format"], "zmeta_v1.1")
	}

	out := map[string]any{
		"timestamp":      p["timestamp"],
		"sensor_id":      p["sensor_id"],
		"modality":       modality,
		"location":       p["location"],
		"orientation":    p["orientation"],
		"data":           data,
		"pid":            p["pid"],
		"tags":           p["tags"],
		"note":           p["note"],
		"sequence":       p["sequence"],
		"source_format":  sourceFormat,
		"schema_version": "1.0",
		"stream_id":      p["stream_id"],
		"bundle_id":      p["bundle_id"],
		"partition_key":  p["partition_key"],
		"provenance":     p["provenance"],
		"transport":      p["transport"],
		"security":       p["security"],
		"fusion":         p["fusion"],
	}

	normalized, err := json.Marshal(out)
	if err != nil {
		return nil, false
	}
	return normalized, true
}

// v11ValueKey maps the 1.1 RF payload's short field names to the canonical
// value keys; everything else passes through unchanged.
func v11ValueKey(k string) string {
	switch k {
	case "freq_hz":
		return "frequency_hz"
	case "bw_hz":
		return "bandwidth_hz"
	default:
		return k
	}
}
