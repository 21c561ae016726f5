// Package wire defines the request and response bodies exchanged with the
// remote document store.
//
// The shapes follow the store's JSON RPC interface: every remote call is a
// named [Method] with one request body and one response body. Values are a
// tagged union in which exactly one field is populated.
package wire

import (
	"fmt"
	"strconv"
)

// Method names a remote operation.
type Method string

const (
	MethodLookup           Method = "lookup"
	MethodRunQuery         Method = "runQuery"
	MethodBlindWrite       Method = "blindWrite"
	MethodBeginTransaction Method = "beginTransaction"
	MethodCommit           Method = "commit"
	MethodRollback         Method = "rollback"
)

// Filter operators understood by the store.
const (
	OperatorAnd   = "and"
	OperatorEqual = "equal"
)

// Int64 is an integer that travels as text on the wire but is also accepted
// as a bare JSON number.
type Int64 int64

func (i Int64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatInt(int64(i), 10))), nil
}

func (i *Int64) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("wire: invalid integer %s: %w", string(b), err)
	}
	*i = Int64(n)
	return nil
}

// PathElement is one segment of a key path. ID is zero when the store is
// expected to allocate one.
type PathElement struct {
	Kind string `json:"kind"`
	ID   Int64  `json:"id,omitempty"`
}

// Key identifies a stored entity.
type Key struct {
	Path []PathElement `json:"path"`
}

// Value is a tagged property value.
type Value struct {
	StringValue   *string  `json:"stringValue,omitempty"`
	IntegerValue  *Int64   `json:"integerValue,omitempty"`
	DoubleValue   *float64 `json:"doubleValue,omitempty"`
	BooleanValue  *bool    `json:"booleanValue,omitempty"`
	DateTimeValue *string  `json:"dateTimeValue,omitempty"`
	ListValue     []Value  `json:"listValue,omitempty"`
}

// Tags returns how many of the value's tags are populated.
func (v Value) Tags() int {
	n := 0
	if v.StringValue != nil {
		n++
	}
	if v.IntegerValue != nil {
		n++
	}
	if v.DoubleValue != nil {
		n++
	}
	if v.BooleanValue != nil {
		n++
	}
	if v.DateTimeValue != nil {
		n++
	}
	if v.ListValue != nil {
		n++
	}
	return n
}

// Property holds the values of one entity property.
type Property struct {
	Values []Value `json:"values"`
}

// Entity is a stored record.
type Entity struct {
	Key        Key                 `json:"key"`
	Properties map[string]Property `json:"properties,omitempty"`
}

// EntityResult wraps an entity in lookup and query responses.
type EntityResult struct {
	Entity Entity `json:"entity"`
}

// ReadOptions scopes a read to a transaction.
type ReadOptions struct {
	Transaction string `json:"transaction,omitempty"`
}

type LookupRequest struct {
	Keys        []Key        `json:"keys"`
	ReadOptions *ReadOptions `json:"readOptions,omitempty"`
}

type LookupResponse struct {
	Found   []EntityResult `json:"found"`
	Missing []EntityResult `json:"missing,omitempty"`
}

// KindExpression names the kind a query ranges over.
type KindExpression struct {
	Name string `json:"name"`
}

type PropertyReference struct {
	Name string `json:"name"`
}

type PropertyFilter struct {
	Property PropertyReference `json:"property"`
	Operator string            `json:"operator"`
	Value    Value             `json:"value"`
}

type CompositeFilter struct {
	Operator string   `json:"operator"`
	Filters  []Filter `json:"filters"`
}

// Filter holds exactly one of a composite or a property filter.
type Filter struct {
	CompositeFilter *CompositeFilter `json:"compositeFilter,omitempty"`
	PropertyFilter  *PropertyFilter  `json:"propertyFilter,omitempty"`
}

type Query struct {
	Kinds  []KindExpression `json:"kinds"`
	Filter *Filter          `json:"filter,omitempty"`
}

type RunQueryRequest struct {
	Query       Query        `json:"query"`
	ReadOptions *ReadOptions `json:"readOptions,omitempty"`
}

type QueryResultBatch struct {
	EntityResults []EntityResult `json:"entityResults"`
}

type RunQueryResponse struct {
	Batch QueryResultBatch `json:"batch"`
}

// Mutation is a set of blind writes applied together.
type Mutation struct {
	Upsert       []Entity `json:"upsert,omitempty"`
	InsertAutoID []Entity `json:"insertAutoId,omitempty"`
	Delete       []Key    `json:"delete,omitempty"`
}

// Empty reports whether the mutation carries no writes.
func (m Mutation) Empty() bool {
	return len(m.Upsert) == 0 && len(m.InsertAutoID) == 0 && len(m.Delete) == 0
}

type MutationResult struct {
	InsertAutoIDKeys []Key `json:"insertAutoIdKeys,omitempty"`
}

type BlindWriteRequest struct {
	Mutation Mutation `json:"mutation"`
}

type BlindWriteResponse struct {
	MutationResult MutationResult `json:"mutationResult"`
}

type BeginTransactionRequest struct{}

type BeginTransactionResponse struct {
	Transaction string `json:"transaction"`
}

type CommitRequest struct {
	Transaction string   `json:"transaction"`
	Mutation    Mutation `json:"mutation"`
	Mode        string   `json:"mode,omitempty"`
}

type CommitResponse struct {
	MutationResult MutationResult `json:"mutationResult"`
}

type RollbackRequest struct {
	Transaction string `json:"transaction"`
}

type RollbackResponse struct{}
