package store

import (
	"fmt"
	"math"
	"time"
)

// Value is a property value. The set of implementations is closed: String,
// Int, Float, Bool and Timestamp.
type Value interface {
	isValue()
}

// String is a text property value.
type String string

// Int is an integer property value.
type Int int64

// Float is a floating point property value.
type Float float64

// Bool is a boolean property value.
type Bool bool

// Timestamp is a point in time, always held in UTC.
type Timestamp struct {
	t time.Time
}

// Time returns t as a Timestamp normalized to UTC.
func Time(t time.Time) Timestamp {
	return Timestamp{t: t.UTC()}
}

// Time returns the timestamp as a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return ts.t
}

func (ts Timestamp) String() string {
	return ts.t.Format(TimeFormat)
}

func (String) isValue()    {}
func (Int) isValue()       {}
func (Float) isValue()     {}
func (Bool) isValue()      {}
func (Timestamp) isValue() {}

// ValueOf converts a native Go value into a Value. Lists, maps, nil and any
// other kind without a wire representation yield ErrUnsupportedValue.
func ValueOf(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
	case Value:
		return normalize(v), nil
	case string:
		return String(v), nil
	case int:
		return Int(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case uint32:
		return Int(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, v)
		}
		return Int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedValue, v)
		}
		return Int(v), nil
	case float32:
		return Float(v), nil
	case float64:
		return Float(v), nil
	case bool:
		return Bool(v), nil
	case time.Time:
		return Time(v), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

// Equal reports whether a and b hold the same kind and the same value.
// Timestamps compare by instant.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(Timestamp); ok {
		tb, ok := b.(Timestamp)
		return ok && ta.t.Equal(tb.t)
	}
	return a == b
}

func normalize(v Value) Value {
	if ts, ok := v.(Timestamp); ok {
		return Time(ts.t)
	}
	return v
}
