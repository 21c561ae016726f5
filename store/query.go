package store

import (
	"fmt"

	"github.com/jacentio/canopy/wire"
)

// Filter is an equality condition on one property.
//
// Equality is exact on the encoded value, so a filter only matches
// properties of the same kind: Eq("a", String("1")) never matches Int(1).
type Filter struct {
	Property string
	Value    Value
}

// Eq returns a filter matching entities whose property equals v.
func Eq(property string, v Value) Filter {
	return Filter{Property: property, Value: normalize(v)}
}

// BuildAll returns a query matching every entity of kind.
func BuildAll(kind string) wire.Query {
	return wire.Query{
		Kinds: []wire.KindExpression{{Name: kind}},
	}
}

// BuildWhere returns a query matching entities of kind that satisfy all
// filters. With no filters it is the same as BuildAll.
func BuildWhere(kind string, filters []Filter) wire.Query {
	q := BuildAll(kind)
	if len(filters) == 0 {
		return q
	}

	conds := make([]wire.Filter, 0, len(filters))
	for _, f := range filters {
		conds = append(conds, wire.Filter{
			PropertyFilter: &wire.PropertyFilter{
				Property: wire.PropertyReference{Name: f.Property},
				Operator: wire.OperatorEqual,
				Value:    Encode(f.Value),
			},
		})
	}

	q.Filter = &wire.Filter{
		CompositeFilter: &wire.CompositeFilter{
			Operator: wire.OperatorAnd,
			Filters:  conds,
		},
	}
	return q
}

func checkFilters(filters []Filter) error {
	for _, f := range filters {
		if f.Value == nil {
			return fmt.Errorf("%w: nil filter value for %q", ErrUnsupportedValue, f.Property)
		}
	}
	return nil
}
