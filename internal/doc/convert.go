package doc

import (
	"encoding/json"
	"fmt"
	"math"
)

// FromAny converts decoded Go values (encoding/json, yaml.v3, msgpack, CUE
// exports) into a Node tree.
func FromAny(v any) (Node, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Node:
		return Clone(val), nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %s: %w", val, err)
		}
		return Number(f), nil
	case float64:
		return finite(val)
	case float32:
		return finite(float64(val))
	case int:
		return Number(float64(val)), nil
	case int8:
		return Number(float64(val)), nil
	case int16:
		return Number(float64(val)), nil
	case int32:
		return Number(float64(val)), nil
	case int64:
		return Number(float64(val)), nil
	case uint:
		return Number(float64(val)), nil
	case uint8:
		return Number(float64(val)), nil
	case uint16:
		return Number(float64(val)), nil
	case uint32:
		return Number(float64(val)), nil
	case uint64:
		return Number(float64(val)), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			n, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = n
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			n, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = n
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v (%T)", k, k)
			}
			n, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", key, err)
			}
			obj[key] = n
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func finite(f float64) (Node, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return Number(f), nil
}

// ToAny converts a Node tree into plain Go values (map[string]any, []any,
// float64, bool, string, nil) for encoders that do not know about Node.
func ToAny(n Node) any {
	switch v := n.(type) {
	case Number:
		return float64(v)
	case Bool:
		return bool(v)
	case String:
		return string(v)
	case Array:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(v))
		for k, elem := range v {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}
