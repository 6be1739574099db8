package rules

import "reflect"

// evalCondition applies the one predicate set on c to value; an empty
// condition matches nothing. Numeric coercions never panic — a
// non-numeric operand simply yields false.
func evalCondition(c Condition, value any) bool {
	switch {
	case c.Eq != nil:
		return equalValue(value, c.Eq)
	case c.In != nil:
		return membership(value, c.In)
	case len(c.Between) == 2:
		v, ok := toFloat(value)
		if !ok {
			return false
		}
		return v >= c.Between[0] && v <= c.Between[1]
	case c.GTE != nil:
		v, ok := toFloat(value)
		if !ok {
			return false
		}
		return v >= *c.GTE
	case c.LTE != nil:
		v, ok := toFloat(value)
		if !ok {
			return false
		}
		return v <= *c.LTE
	case len(c.Polygon) > 0:
		lat, lon, ok := resolvePoint(value)
		if !ok {
			return false
		}
		return pointInPolygon(lat, lon, c.Polygon)
	default:
		return false
	}
}

func equalValue(value, want any) bool {
	vf, vok := toFloat(value)
	wf, wok := toFloat(want)
	if vok && wok {
		return vf == wf
	}
	return reflect.DeepEqual(value, want)
}

func membership(value any, list []any) bool {
	for _, item := range list {
		if equalValue(value, item) {
			return true
		}
	}
	return false
}

// toFloat coerces common numeric representations (float64, int, YAML's
// int/uint variants) without panicking on the rest.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// resolvePoint reads a (lat, lon) point either from a location-shaped map
// ({"lat":..,"lon":..}) or from a two-element [lat, lon] slice.
func resolvePoint(value any) (lat, lon float64, ok bool) {
	switch v := value.(type) {
	case map[string]any:
		lat, latOK := toFloat(v["lat"])
		lon, lonOK := toFloat(v["lon"])
		if latOK && lonOK {
			return lat, lon, true
		}
		return 0, 0, false
	case []any:
		if len(v) != 2 {
			return 0, 0, false
		}
		lat, latOK := toFloat(v[0])
		lon, lonOK := toFloat(v[1])
		if latOK && lonOK {
			return lat, lon, true
		}
		return 0, 0, false
	default:
		return 0, 0, false
	}
}
