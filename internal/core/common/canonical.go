package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// IDSuffix marks identifier fields that are always stored as strings.
const IDSuffix = "_id"

// Canonical renders a key or identifier value as its canonical string, so that
// 7, int64(7), 7.0, json.Number("7") and "7" all compare equal across runs.
// ok is false for nil.
func Canonical(v any) (s string, ok bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if isIntegerLiteral(t) {
			return t.String(), true
		}
		if f, err := t.Float64(); err == nil {
			return formatFloat(f), true
		}
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", t), true
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t), true
	case float32:
		return formatFloat(float64(t)), true
	case float64:
		return formatFloat(t), true
	case bool:
		return strconv.FormatBool(t), true
	case []any, map[string]any:
		s, err := EncodeComposite(t)
		if err != nil {
			return fmt.Sprint(t), true
		}
		return s, true
	default:
		return fmt.Sprint(t), true
	}
}

// isIntegerLiteral reports whether n is written without a fraction or
// exponent. Such literals outside the int64 range are kept verbatim.
func isIntegerLiteral(n json.Number) bool {
	return !strings.ContainsAny(n.String(), ".eE")
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// EncodeComposite serializes lists and maps to compact JSON with sorted keys
// and no HTML escaping. The output parses back with encoding/json.
func EncodeComposite(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode composite: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// IsComposite reports whether v is a list or mapping.
func IsComposite(v any) bool {
	switch v.(type) {
	case []any, map[string]any, []string, map[string]string:
		return true
	}
	return false
}

// NormalizeScalar converts decoder-specific number types into int64 or
// float64 so every backend receives plain scalars. Integers beyond the int64
// range become their decimal string.
func NormalizeScalar(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if isIntegerLiteral(t) {
			return t.String()
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint:
		return normalizeUint(uint64(t))
	case uint64:
		return normalizeUint(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return strconv.FormatUint(u, 10)
	}
	return int64(u)
}

// NormalizeProperty maps one record field to the value stored on a vertex.
// Composites become canonical JSON, *_id fields become canonical strings,
// other scalars pass through. keep is false for nil values, which are never
// written.
func NormalizeProperty(name string, v any) (out any, keep bool) {
	if v == nil {
		return nil, false
	}
	if IsComposite(v) {
		s, err := EncodeComposite(v)
		if err != nil {
			return fmt.Sprint(v), true
		}
		return s, true
	}
	if strings.HasSuffix(name, IDSuffix) {
		s, _ := Canonical(v)
		return s, true
	}
	return NormalizeScalar(v), true
}

// NormalizeProperties applies NormalizeProperty to every field except skip.
func NormalizeProperties(props map[string]any, skip string) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == skip {
			continue
		}
		if nv, ok := NormalizeProperty(k, v); ok {
			out[k] = nv
		}
	}
	return out
}
