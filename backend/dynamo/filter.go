package dynamo

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/wire"
)

// buildFilter translates a wire filter into a DynamoDB filter expression.
// The TTL filter is always included. Each equality compares the scalar at
// props.<name>[0].<tag>, so a value of another kind has no attribute at
// that path and never matches.
func buildFilter(f *wire.Filter, now time.Time) (string, map[string]string, map[string]types.AttributeValue, error) {
	var preds []*wire.PropertyFilter
	if err := flatten(f, &preds); err != nil {
		return "", nil, nil, err
	}

	conds := []string{liveExpr}
	names := ttlNames()
	values := ttlValues(now)

	if len(preds) > 0 {
		names["#props"] = attrProps
	}

	for i, pf := range preds {
		if pf.Value.ListValue != nil {
			return "", nil, nil, fmt.Errorf("%w: list equality on %q", ErrUnsupportedFilter, pf.Property.Name)
		}
		tag, scalar, err := scalarAttr(pf.Value)
		if err != nil {
			return "", nil, nil, fmt.Errorf("filter on %q: %w", pf.Property.Name, err)
		}

		nameKey := fmt.Sprintf("#p%d", i)
		tagKey := fmt.Sprintf("#t%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		names[nameKey] = pf.Property.Name
		names[tagKey] = tag
		values[valueKey] = scalar
		conds = append(conds, fmt.Sprintf("#props.%s[0].%s = %s", nameKey, tagKey, valueKey))
	}

	return strings.Join(conds, " AND "), names, values, nil
}

// flatten collects the property filters of an AND tree.
func flatten(f *wire.Filter, out *[]*wire.PropertyFilter) error {
	if f == nil {
		return nil
	}

	if cf := f.CompositeFilter; cf != nil {
		if cf.Operator != wire.OperatorAnd {
			return fmt.Errorf("%w: composite operator %q", ErrUnsupportedFilter, cf.Operator)
		}
		for i := range cf.Filters {
			if err := flatten(&cf.Filters[i], out); err != nil {
				return err
			}
		}
	}

	if pf := f.PropertyFilter; pf != nil {
		if pf.Operator != wire.OperatorEqual {
			return fmt.Errorf("%w: property operator %q", ErrUnsupportedFilter, pf.Operator)
		}
		*out = append(*out, pf)
	}

	return nil
}
