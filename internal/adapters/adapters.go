// Package adapters normalizes foreign sensor payloads into the canonical
// event schema when strict validation fails. Each adapter recognizes its
// own input shape and declines (returns ok=false) rather than erroring
// when it doesn't match; the registry tries them in order and the first
// match decides.
package adapters

import (
	"encoding/json"

	"github.com/snarg/zmeta/internal/schema"
)

// Adapter attempts to normalize a raw payload into canonical JSON bytes. It
// returns ok=false when the payload doesn't match its recognized shape;
// it never returns an error for "didn't match" — only genuine internal
// failures while building output it already decided to produce.
type Adapter struct {
	Name string
	Try  func(raw map[string]any) (normalized []byte, ok bool)
}

// Registry is the ordered list consulted after strict validation fails. The
// first adapter to match decides; order matches named adapters.
var Registry = []Adapter{
	{Name: "v1.1", Try: tryV11},
	{Name: "rf-mhz", Try: tryRFMhz},
	{Name: "thermal-hotspot", Try: tryThermalHotspot},
	{Name: "klv-like", Try: tryKLVLike},
}

// Adapt runs the registry in order against raw and returns the first match,
// re-validated strictly. If no adapter matches, or the first matching
// adapter's output fails strict validation, ok is false.
func Adapt(raw map[string]any) (evt *schema.Event, adapterName string, ok bool) {
	for _, a := range Registry {
		normalized, matched := a.Try(raw)
		if !matched {
			continue
		}
		parsed, err := schema.ParseStrict(normalized)
		if err != nil {
			// The adapter's own output failed strict validation; that's a
			// bug in the adapter, not a sign another adapter should run.
			// The first adapter to return a non-empty result decides, so
			// this surfaces as "no match" without trying later adapters.
			return nil, "", false
		}
		return parsed, a.Name, true
	}
	return nil, "", false
}

// getPath walks a dotted field path through nested maps.
func getPath(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range splitDot(path) {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, present := asMap[part]
		if !present {
			return nil
		}
		cur = v
	}
	return cur
}

func splitDot(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func copyLocation(p map[string]any) map[string]any {
	loc, _ := p["location"].(map[string]any)
	out := map[string]any{}
	if loc != nil {
		if v, ok := loc["lat"]; ok {
			out["lat"] = v
		}
		if v, ok := loc["lon"]; ok {
			out["lon"] = v
		}
		if v, ok := loc["alt"]; ok {
			out["alt"] = v
		}
	}
	return out
}

// topConfidence prefers a top-level confidence field, falling back to
// data.confidence.
func topConfidence(p map[string]any) (float64, bool) {
	if v, ok := asFloat(p["confidence"]); ok {
		return v, true
	}
	if v, ok := asFloat(getPath(p, "data.confidence")); ok {
		return v, true
	}
	return 0, false
}

func stringOr(v any, def string) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}
