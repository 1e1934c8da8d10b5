package harvest

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is one feature as returned by the service: an "attributes" object
// and, for feature layers queried with geometry, a "geometry" object.
// Records are never mutated after they are decoded.
type Record map[string]any

// Attributes returns the attribute map, or nil when absent.
func (r Record) Attributes() map[string]any {
	attrs, _ := r["attributes"].(map[string]any)
	return attrs
}

// Geometry returns the geometry map, or nil when absent.
func (r Record) Geometry() map[string]any {
	geom, _ := r["geometry"].(map[string]any)
	return geom
}

// Identifier returns the integer value of the identifier field. The exact
// field name is tried first, then a case-insensitive match.
func (r Record) Identifier(field string) (int64, bool) {
	attrs := r.Attributes()
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs[field]
	if !ok {
		for name, value := range attrs {
			if strings.EqualFold(name, field) {
				v, ok = value, true
				break
			}
		}
	}
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
