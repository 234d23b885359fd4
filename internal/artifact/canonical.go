package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
)

// canonicalJSON marshals v as key-sorted, indented JSON. encoding/json
// already sorts map[string]any keys, but it marshals struct fields in
// declaration order, so a struct-typed artifact must first round-trip
// through a generic value to get byte-for-byte key-sorted output (spec.md
// §4.4 / §6.2: "whole-file writes of indented, key-sorted JSON").
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonicalize: unmarshal: %w", err)
	}

	sorted := sortValue(generic)
	out, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal sorted: %w", err)
	}
	return out, nil
}

func sortValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return &sortedMap{value: val}
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sortValue(item)
		}
		return out
	default:
		return val
	}
}

// sortedMap marshals a JSON object with keys in sorted order, recursing
// into nested values so the whole document is key-sorted, not just the top
// level.
type sortedMap struct {
	value map[string]interface{}
}

func (m *sortedMap) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m.value))
	for k := range m.value {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte("{")
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(sortValue(m.value[k]))
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
