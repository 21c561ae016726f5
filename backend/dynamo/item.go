package dynamo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/internal/shard"
	"github.com/jacentio/canopy/wire"
)

// Attribute names of an entity item.
const (
	attrPK    = "pk"
	attrID    = "id"
	attrKind  = "kind"
	attrProps = "props"
	attrTTL   = "ttl"
)

// Value tags, stored as the single key of a value map.
const (
	tagString   = "stringValue"
	tagInteger  = "integerValue"
	tagDouble   = "doubleValue"
	tagBoolean  = "booleanValue"
	tagDateTime = "dateTimeValue"
	tagList     = "listValue"
)

type itemKey struct {
	PK string `dynamodbav:"pk"`
	ID int64  `dynamodbav:"id"`
}

type itemHeader struct {
	PK   string `dynamodbav:"pk"`
	ID   int64  `dynamodbav:"id"`
	Kind string `dynamodbav:"kind"`
}

// keyParts extracts kind and id from a single-segment key with an id.
func keyParts(key wire.Key) (string, int64, error) {
	if len(key.Path) != 1 || key.Path[0].Kind == "" || key.Path[0].ID <= 0 {
		return "", 0, fmt.Errorf("%w: %+v", ErrInvalidKey, key.Path)
	}
	return key.Path[0].Kind, int64(key.Path[0].ID), nil
}

// primaryKey builds the DynamoDB key of an entity.
func primaryKey(kind string, id int64, numShards int) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(itemKey{
		PK: shard.EntityPK(kind, id, numShards),
		ID: id,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

// entityItem builds the full item for e stored under kind/id.
func entityItem(e wire.Entity, kind string, id int64, numShards int) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(itemHeader{
		PK:   shard.EntityPK(kind, id, numShards),
		ID:   id,
		Kind: kind,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}

	props := make(map[string]types.AttributeValue, len(e.Properties))
	for name, p := range e.Properties {
		values := make([]types.AttributeValue, 0, len(p.Values))
		for _, v := range p.Values {
			av, err := valueAttr(v)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			values = append(values, av)
		}
		props[name] = &types.AttributeValueMemberL{Value: values}
	}
	item[attrProps] = &types.AttributeValueMemberM{Value: props}

	return item, nil
}

// DecodeItem converts a stored item, or a stream image of one, into a wire
// entity.
func DecodeItem(item map[string]types.AttributeValue) (wire.Entity, error) {
	var h itemHeader
	if err := attributevalue.UnmarshalMap(item, &h); err != nil {
		return wire.Entity{}, fmt.Errorf("unmarshal item: %w", err)
	}

	e := wire.Entity{
		Key: wire.Key{Path: []wire.PathElement{{Kind: h.Kind, ID: wire.Int64(h.ID)}}},
	}

	propsAttr, ok := item[attrProps].(*types.AttributeValueMemberM)
	if !ok {
		return e, nil
	}

	e.Properties = make(map[string]wire.Property, len(propsAttr.Value))
	for name, av := range propsAttr.Value {
		list, ok := av.(*types.AttributeValueMemberL)
		if !ok {
			return wire.Entity{}, fmt.Errorf("%w: property %q is %T", ErrInvalidValue, name, av)
		}
		values := make([]wire.Value, 0, len(list.Value))
		for _, elem := range list.Value {
			v, err := attrValue(elem)
			if err != nil {
				return wire.Entity{}, fmt.Errorf("property %q: %w", name, err)
			}
			values = append(values, v)
		}
		e.Properties[name] = wire.Property{Values: values}
	}

	return e, nil
}

// valueAttr stores a wire value as a single-key map {tag: scalar}.
func valueAttr(v wire.Value) (types.AttributeValue, error) {
	tag, scalar, err := scalarAttr(v)
	if err != nil {
		return nil, err
	}
	return &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{tag: scalar}}, nil
}

// scalarAttr returns the tag and scalar attribute of a wire value.
func scalarAttr(v wire.Value) (string, types.AttributeValue, error) {
	if v.Tags() != 1 {
		return "", nil, fmt.Errorf("%w: value has %d tags", ErrInvalidValue, v.Tags())
	}

	switch {
	case v.StringValue != nil:
		return tagString, &types.AttributeValueMemberS{Value: *v.StringValue}, nil
	case v.IntegerValue != nil:
		return tagInteger, &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(*v.IntegerValue), 10)}, nil
	case v.DoubleValue != nil:
		f := *v.DoubleValue
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidValue, f)
		}
		return tagDouble, &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'g', -1, 64)}, nil
	case v.BooleanValue != nil:
		return tagBoolean, &types.AttributeValueMemberBOOL{Value: *v.BooleanValue}, nil
	case v.DateTimeValue != nil:
		return tagDateTime, &types.AttributeValueMemberS{Value: *v.DateTimeValue}, nil
	}

	elems := make([]types.AttributeValue, 0, len(v.ListValue))
	for _, elem := range v.ListValue {
		av, err := valueAttr(elem)
		if err != nil {
			return "", nil, err
		}
		elems = append(elems, av)
	}
	return tagList, &types.AttributeValueMemberL{Value: elems}, nil
}

// attrValue converts a stored {tag: scalar} map back into a wire value.
func attrValue(av types.AttributeValue) (wire.Value, error) {
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok || len(m.Value) != 1 {
		return wire.Value{}, fmt.Errorf("%w: %T is not a tagged value", ErrInvalidValue, av)
	}

	for tag, scalar := range m.Value {
		switch tag {
		case tagString, tagDateTime:
			s, ok := scalar.(*types.AttributeValueMemberS)
			if !ok {
				break
			}
			text := s.Value
			if tag == tagString {
				return wire.Value{StringValue: &text}, nil
			}
			return wire.Value{DateTimeValue: &text}, nil

		case tagInteger:
			n, ok := scalar.(*types.AttributeValueMemberN)
			if !ok {
				break
			}
			i, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil {
				return wire.Value{}, fmt.Errorf("%w: integer %q", ErrInvalidValue, n.Value)
			}
			w := wire.Int64(i)
			return wire.Value{IntegerValue: &w}, nil

		case tagDouble:
			n, ok := scalar.(*types.AttributeValueMemberN)
			if !ok {
				break
			}
			f, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return wire.Value{}, fmt.Errorf("%w: double %q", ErrInvalidValue, n.Value)
			}
			return wire.Value{DoubleValue: &f}, nil

		case tagBoolean:
			b, ok := scalar.(*types.AttributeValueMemberBOOL)
			if !ok {
				break
			}
			v := b.Value
			return wire.Value{BooleanValue: &v}, nil

		case tagList:
			l, ok := scalar.(*types.AttributeValueMemberL)
			if !ok {
				break
			}
			list := make([]wire.Value, 0, len(l.Value))
			for _, elem := range l.Value {
				v, err := attrValue(elem)
				if err != nil {
					return wire.Value{}, err
				}
				list = append(list, v)
			}
			return wire.Value{ListValue: list}, nil
		}
		return wire.Value{}, fmt.Errorf("%w: tag %q holds %T", ErrInvalidValue, tag, scalar)
	}

	return wire.Value{}, fmt.Errorf("%w: empty value", ErrInvalidValue)
}
