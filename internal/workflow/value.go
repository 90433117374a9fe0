package workflow

import (
	"encoding/json"
	"math"
	"strconv"
)

// Reference points at one output of another node.
type Reference struct {
	TargetID    string
	OutputIndex int
}

// LoraRecord is one entry of a multi-lora loader's list.
type LoraRecord struct {
	Name     string
	Strength float64
	Active   bool
}

// Value wraps an untyped field value. Malformed types read as absent.
type Value struct {
	v any
}

// ValueOf wraps a decoded JSON value or a Go literal.
func ValueOf(v any) Value {
	return Value{v: v}
}

// Text builds a string value.
func Text(s string) Value { return Value{v: s} }

// Num builds a numeric value.
func Num(f float64) Value { return Value{v: f} }

// Ref builds a node reference value.
func Ref(targetID string, outputIndex int) Value {
	return Value{v: Reference{TargetID: targetID, OutputIndex: outputIndex}}
}

// Loras builds a multi-lora list value.
func Loras(records ...LoraRecord) Value {
	return Value{v: records}
}

// IsNull reports whether the value is missing or JSON null.
func (v Value) IsNull() bool {
	return v.v == nil
}

// Str returns the value as a string.
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Number returns the value as a float.
func (v Value) Number() (float64, bool) {
	switch n := v.v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Int returns the value as an integer. Fractional numbers are truncated;
// numbers outside the int64 range read as absent.
func (v Value) Int() (int64, bool) {
	switch n := v.v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	f, ok := v.Number()
	if !ok || math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// Uint returns the value as an unsigned integer, covering the full range
// of sampler seeds. Negative numbers read as absent.
func (v Value) Uint() (uint64, bool) {
	switch n := v.v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case uint64:
		return n, true
	}
	f, ok := v.Number()
	if !ok || math.IsNaN(f) || f < 0 || f >= 1<<64 {
		return 0, false
	}
	return uint64(f), true
}

// Bool returns the value as a boolean.
func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

// Ref returns the value as a node reference. The wire form is a
// two-element array of a string id and an integer output index.
func (v Value) Ref() (Reference, bool) {
	switch r := v.v.(type) {
	case Reference:
		return r, true
	case []any:
		if len(r) != 2 {
			return Reference{}, false
		}
		id, ok := r[0].(string)
		if !ok {
			return Reference{}, false
		}
		idx, ok := ValueOf(r[1]).Int()
		if !ok {
			return Reference{}, false
		}
		return Reference{TargetID: id, OutputIndex: int(idx)}, true
	}
	return Reference{}, false
}

// LoraRecords returns the value as a list of lora records. Items that do
// not carry a string name are dropped; a missing strength reads as 1.0 and
// only an explicit false marks a record inactive.
func (v Value) LoraRecords() ([]LoraRecord, bool) {
	switch list := v.v.(type) {
	case []LoraRecord:
		return list, true
	case []any:
		out := make([]LoraRecord, 0, len(list))
		for _, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, ok := obj["name"].(string)
			if !ok {
				continue
			}
			rec := LoraRecord{Name: name, Strength: 1.0, Active: true}
			if s, ok := ValueOf(obj["strength"]).Number(); ok {
				rec.Strength = s
			}
			if active, ok := obj["active"].(bool); ok && !active {
				rec.Active = false
			}
			out = append(out, rec)
		}
		return out, true
	}
	return nil, false
}
