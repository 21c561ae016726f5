package store

import (
	"fmt"
	"time"

	"github.com/jacentio/canopy/wire"
)

// TimeFormat is the text form of timestamps on the wire. Values are always
// formatted in UTC so that a decode/encode round trip is exact.
const TimeFormat = time.RFC3339Nano

// Encode maps a Value onto its wire representation. It panics when v is nil,
// which IsValid rules out before any write.
func Encode(v Value) wire.Value {
	switch v := v.(type) {
	case String:
		s := string(v)
		return wire.Value{StringValue: &s}
	case Int:
		n := wire.Int64(v)
		return wire.Value{IntegerValue: &n}
	case Float:
		f := float64(v)
		return wire.Value{DoubleValue: &f}
	case Bool:
		b := bool(v)
		return wire.Value{BooleanValue: &b}
	case Timestamp:
		s := v.t.UTC().Format(TimeFormat)
		return wire.Value{DateTimeValue: &s}
	}
	panic(fmt.Errorf("%w: %T", ErrUnsupportedValue, v))
}

// Decode maps a wire value back onto a Value.
func Decode(w wire.Value) (Value, error) {
	if w.Tags() != 1 {
		return nil, fmt.Errorf("%w: value has %d tags", ErrMalformedResponse, w.Tags())
	}

	switch {
	case w.StringValue != nil:
		return String(*w.StringValue), nil
	case w.IntegerValue != nil:
		return Int(*w.IntegerValue), nil
	case w.DoubleValue != nil:
		return Float(*w.DoubleValue), nil
	case w.BooleanValue != nil:
		return Bool(*w.BooleanValue), nil
	case w.DateTimeValue != nil:
		t, err := time.Parse(TimeFormat, *w.DateTimeValue)
		if err != nil {
			return nil, fmt.Errorf("%w: dateTimeValue %q: %v", ErrMalformedResponse, *w.DateTimeValue, err)
		}
		return Time(t), nil
	}

	return nil, fmt.Errorf("%w: list values are not supported", ErrMalformedResponse)
}
