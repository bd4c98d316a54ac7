package kvdb

import (
	"bytes"
	"encoding/json"
	"math"
)

type undefined struct{}

// Undefined stands for a missing value. It is never storable.
var Undefined any = undefined{}

// IsValidKey reports whether k can address a value. Any string is accepted,
// including the empty string.
func IsValidKey(k any) bool {
	_, ok := k.(string)
	return ok
}

// IsValidValue reports whether v may be stored: everything except Undefined
// and positive or negative infinity.
func IsValidValue(v any) bool {
	switch t := v.(type) {
	case undefined:
		return false
	case float64:
		return !math.IsInf(t, 0)
	case float32:
		return !math.IsInf(float64(t), 0)
	}
	return true
}

func checkValue(op string, v any) error {
	if !IsValidValue(v) {
		return invalid(op, "value", ErrInvalidValue)
	}
	return nil
}

// encodeValue renders v as compact JSON without HTML escaping.
func encodeValue(op string, v any) ([]byte, error) {
	if err := checkValue(op, v); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, &ValidationError{Op: op, Arg: "value", Err: ErrInvalidValue, Cause: err}
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// normalizeValue gives v the shape it will have once read back from the
// store (numbers as float64, structs as maps).
func normalizeValue(op string, v any) (any, error) {
	raw, err := encodeValue(op, v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ValidationError{Op: op, Arg: "value", Err: ErrInvalidValue, Cause: err}
	}
	return out, nil
}
