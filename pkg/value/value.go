// Package value implements deep-copy and JSON-encoding helpers for the
// type-erased values (strings, numbers, bools, lists, dicts) that flow
// through variables, data rows, and resolved expressions. Values are
// represented as plain interface{}, matching the teacher's own
// ExecutionContext (pkg/executor.ExecutionContext uses interface{}
// throughout rather than a tagged union).
package value

import "encoding/json"

// DeepCopy returns a value with no shared mutable state with v. Scalars
// (string, the numeric kinds, bool, nil) are returned as-is since they are
// already immutable in Go. []interface{} and map[string]interface{} are
// copied recursively. Any other concrete type (e.g. a []string produced by
// an executor) is copied via a JSON roundtrip, which is sufficient for the
// JSON-shaped data this engine ever resolves.
//
// Required by invariant I4: resolver output must be deep-copied so a later
// write to the source variable cannot corrupt an already-resolved
// expression held by an in-flight node.
func DeepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return t
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, elem := range t {
			out[i] = DeepCopy(elem)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, elem := range t {
			out[k] = DeepCopy(elem)
		}
		return out
	default:
		return jsonRoundTrip(v)
	}
}

// jsonRoundTrip copies an arbitrary value by marshaling then unmarshaling
// it into a generic interface{}. Used only for concrete types outside the
// standard JSON scalar/list/dict shapes; falls back to returning v
// unchanged if it is not JSON-representable (functions, channels) since
// those never legitimately appear in workflow data.
func jsonRoundTrip(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Encode renders v as a JSON string. Used when a compound value (list or
// dict) is substituted into a string template: spec §4.1 requires
// compound values to be JSON-encoded rather than rendered with Go's
// default %v formatting.
func Encode(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsCompound reports whether v is a list or dict, i.e. whether
// substituting it into a string template requires JSON-encoding rather
// than a direct string conversion.
func IsCompound(v interface{}) bool {
	switch v.(type) {
	case []interface{}, map[string]interface{}:
		return true
	default:
		return false
	}
}
