package dynamo

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/wire"
)

func eqFilter(name string, v wire.Value) wire.Filter {
	return wire.Filter{PropertyFilter: &wire.PropertyFilter{
		Property: wire.PropertyReference{Name: name},
		Operator: wire.OperatorEqual,
		Value:    v,
	}}
}

func andFilter(filters ...wire.Filter) *wire.Filter {
	return &wire.Filter{CompositeFilter: &wire.CompositeFilter{
		Operator: wire.OperatorAnd,
		Filters:  filters,
	}}
}

func TestBuildFilter_NoFilter(t *testing.T) {
	expr, names, values, err := buildFilter(nil, time.Unix(1000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr != liveExpr {
		t.Errorf("expected only the TTL filter, got %q", expr)
	}
	if names["#ttl"] != attrTTL {
		t.Errorf("expected #ttl -> ttl, got %q", names["#ttl"])
	}
	if _, ok := names["#props"]; ok {
		t.Error("unexpected #props name without property filters")
	}
	now, ok := values[":now"].(*types.AttributeValueMemberN)
	if !ok || now.Value != "1000" {
		t.Errorf("expected :now 1000, got %#v", values[":now"])
	}
}

func TestBuildFilter_Equalities(t *testing.T) {
	f := andFilter(
		eqFilter("a", intVal(1)),
		eqFilter("b", strVal("x")),
	)

	expr, names, values, err := buildFilter(f, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := liveExpr + " AND #props.#p0[0].#t0 = :v0 AND #props.#p1[0].#t1 = :v1"
	if expr != want {
		t.Errorf("expected %q, got %q", want, expr)
	}

	if names["#props"] != attrProps || names["#p0"] != "a" || names["#p1"] != "b" {
		t.Errorf("unexpected names: %v", names)
	}
	if names["#t0"] != tagInteger || names["#t1"] != tagString {
		t.Errorf("expected tag names integerValue/stringValue, got %q/%q", names["#t0"], names["#t1"])
	}
	if v, ok := values[":v0"].(*types.AttributeValueMemberN); !ok || v.Value != "1" {
		t.Errorf("expected :v0 N 1, got %#v", values[":v0"])
	}
	if v, ok := values[":v1"].(*types.AttributeValueMemberS); !ok || v.Value != "x" {
		t.Errorf("expected :v1 S x, got %#v", values[":v1"])
	}
}

func TestBuildFilter_TypeExact(t *testing.T) {
	// "1" and 1 address different attribute paths.
	_, intNames, _, err := buildFilter(andFilter(eqFilter("a", intVal(1))), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, strNames, _, err := buildFilter(andFilter(eqFilter("a", strVal("1"))), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intNames["#t0"] == strNames["#t0"] {
		t.Errorf("expected different tag paths, both %q", intNames["#t0"])
	}
}

func TestBuildFilter_Nested(t *testing.T) {
	f := andFilter(
		eqFilter("a", intVal(1)),
		*andFilter(eqFilter("b", boolVal(true))),
	)

	expr, _, _, err := buildFilter(f, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(expr, "#props.") != 2 {
		t.Errorf("expected two property conditions, got %q", expr)
	}
}

func TestBuildFilter_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		filter *wire.Filter
		want   error
	}{
		{
			name:   "or composite",
			filter: &wire.Filter{CompositeFilter: &wire.CompositeFilter{Operator: "or"}},
			want:   ErrUnsupportedFilter,
		},
		{
			name: "less than",
			filter: &wire.Filter{PropertyFilter: &wire.PropertyFilter{
				Property: wire.PropertyReference{Name: "a"},
				Operator: "lessThan",
				Value:    intVal(1),
			}},
			want: ErrUnsupportedFilter,
		},
		{
			name:   "list value",
			filter: andFilter(eqFilter("a", listVal(intVal(1)))),
			want:   ErrUnsupportedFilter,
		},
		{
			name:   "untagged value",
			filter: andFilter(eqFilter("a", wire.Value{})),
			want:   ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := buildFilter(tt.filter, time.Now())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
