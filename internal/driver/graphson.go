package driver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// GraphSON v2 is the wire format spoken by both TinkerPop servers and
// Cosmos DB. Values may be plain JSON or {"@type": ..., "@value": ...}.
const graphSONMimeType = "application/vnd.gremlin-v2.0+json"

// decodeGraphSON parses a raw GraphSON payload into plain Go values: typed
// numbers become int64/float64, lists become []any, objects map[string]any.
func decodeGraphSON(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode graphson: %w", err)
	}
	return untype(v), nil
}

func untype(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = untype(item)
		}
		return out
	case map[string]any:
		if typ, ok := t["@type"].(string); ok {
			if val, ok := t["@value"]; ok {
				return untypeTagged(typ, val)
			}
		}
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = untype(item)
		}
		return out
	default:
		return v
	}
}

func untypeTagged(typ string, val any) any {
	switch typ {
	case "g:Int32", "g:Int64", "g:Date", "g:Timestamp":
		switch n := untype(val).(type) {
		case int64:
			return n
		case float64:
			return int64(n)
		default:
			return n
		}
	case "g:Float", "g:Double":
		switch n := untype(val).(type) {
		case int64:
			return float64(n)
		default:
			return n
		}
	case "g:List", "g:Set":
		return untype(val)
	case "g:Map":
		// v3 maps are flattened [k1, v1, k2, v2, ...].
		items, ok := untype(val).([]any)
		if !ok {
			return untype(val)
		}
		out := make(map[string]any, len(items)/2)
		for i := 0; i+1 < len(items); i += 2 {
			out[fmt.Sprint(items[i])] = items[i+1]
		}
		return out
	default:
		// g:UUID, g:T, g:Vertex, g:Edge, g:VertexProperty...: keep the payload.
		return untype(val)
	}
}

// encodeBinding tags numeric bindings so the server sees the intended type.
// Vertex ids on TinkerGraph are longs and would not match an untyped int.
func encodeBinding(v any) any {
	switch t := v.(type) {
	case int:
		return map[string]any{"@type": "g:Int64", "@value": int64(t)}
	case int32:
		return map[string]any{"@type": "g:Int32", "@value": t}
	case int64:
		return map[string]any{"@type": "g:Int64", "@value": t}
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Sprint(t)
		}
		return map[string]any{"@type": "g:Double", "@value": t}
	case float32:
		return map[string]any{"@type": "g:Float", "@value": t}
	default:
		return v
	}
}

func encodeBindings(bindings map[string]any) map[string]any {
	if len(bindings) == 0 {
		return nil
	}
	out := make(map[string]any, len(bindings))
	for k, v := range bindings {
		out[k] = encodeBinding(v)
	}
	return out
}

// firstOf unwraps the single-element lists produced by values(...).fold()
// and valueMap(). Empty lists become nil.
func firstOf(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// flattenValueMap turns {"k": ["v"]} into {"k": "v"}. Multi-valued
// properties keep their list.
func flattenValueMap(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		if list, ok := val.([]any); ok && len(list) == 1 {
			out[k] = list[0]
			continue
		}
		out[k] = val
	}
	return out
}
