package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jacentio/canopy/store"
)

// parseValue types a command line value. Integers, floats, true/false and
// RFC 3339 times are recognized; everything else is a string. asString
// skips inference.
func parseValue(s string, asString bool) store.Value {
	if asString {
		return store.String(s)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return store.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return store.Float(f)
	}
	switch s {
	case "true":
		return store.Bool(true)
	case "false":
		return store.Bool(false)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return store.Time(t)
	}
	return store.String(s)
}

// parseAssignments parses name=value arguments.
func parseAssignments(args []string, asString bool) (store.Properties, error) {
	props := make(store.Properties, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", arg)
		}
		if name == store.IDProperty {
			return nil, fmt.Errorf("%q is not a property; use --id", store.IDProperty)
		}
		props[name] = parseValue(value, asString)
	}
	return props, nil
}

// parseID parses a positive entity id.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", s)
	}
	return id, nil
}

type entityJSON struct {
	Kind       string         `json:"kind"`
	ID         int64          `json:"id,omitempty"`
	State      string         `json:"state"`
	Properties map[string]any `json:"properties"`
}

func toJSON(e *store.Entity) entityJSON {
	id, _ := e.ID()
	out := entityJSON{
		Kind:       e.Kind(),
		ID:         id,
		State:      e.State().String(),
		Properties: make(map[string]any),
	}
	for name, v := range e.Properties() {
		switch v := v.(type) {
		case store.Timestamp:
			out.Properties[name] = v.String()
		default:
			out.Properties[name] = v
		}
	}
	return out
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeEntities(w io.Writer, entities []*store.Entity) error {
	out := make([]entityJSON, 0, len(entities))
	for _, e := range entities {
		out = append(out, toJSON(e))
	}
	return writeJSON(w, out)
}
