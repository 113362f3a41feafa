package domain

import (
	"encoding/json"
	"log/slog"
	"math"
)

// Float is an optional numeric value. The zero value is undefined.
type Float struct {
	Value float64
	Valid bool
}

// Some wraps a defined value. Non-finite inputs stay undefined.
func Some(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float{}
	}
	return Float{Value: v, Valid: true}
}

// None returns an undefined value.
func None() Float {
	return Float{}
}

// Or returns the value, or def when undefined.
func (f Float) Or(def float64) float64 {
	if !f.Valid {
		return def
	}
	return f.Value
}

// MarshalJSON encodes undefined values as null.
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON accepts null or a number.
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}

// LogValue renders undefined values as "undefined" in structured logs.
func (f Float) LogValue() slog.Value {
	if !f.Valid {
		return slog.StringValue("undefined")
	}
	return slog.Float64Value(f.Value)
}
