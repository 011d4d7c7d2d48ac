package updateexpr

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type EvalInput struct {
	ExpressionNames  map[string]string
	ExpressionValues map[string]types.AttributeValue
	ReturnValues     types.ReturnValue
}

type EvalOutput struct {
	Item             map[string]types.AttributeValue
	ReturnAttributes map[string]types.AttributeValue
}

// Apply evaluates every SET value against item as it was before the update,
// then writes the results and drops the REMOVE paths. item is not modified.
func Apply(expr *Expression, in EvalInput, item map[string]types.AttributeValue) (*EvalOutput, error) {
	touched := make(map[string]bool, len(expr.Set)+len(expr.Remove))
	mark := func(p Path) (string, error) {
		name, err := p.resolve(in.ExpressionNames)
		if err != nil {
			return "", err
		}
		if touched[name] {
			return "", fmt.Errorf("two document paths overlap: %q", name)
		}
		touched[name] = true
		return name, nil
	}

	sets := make(map[string]types.AttributeValue, len(expr.Set))
	for _, act := range expr.Set {
		name, err := mark(act.Path)
		if err != nil {
			return nil, err
		}
		v, err := act.Value.eval(in, item)
		if err != nil {
			return nil, fmt.Errorf("SET %s: %w", name, err)
		}
		sets[name] = v
	}
	removes := make([]string, 0, len(expr.Remove))
	for _, p := range expr.Remove {
		name, err := mark(p)
		if err != nil {
			return nil, err
		}
		removes = append(removes, name)
	}

	next := make(map[string]types.AttributeValue, len(item)+len(sets))
	for k, v := range item {
		next[k] = v
	}
	for k, v := range sets {
		next[k] = v
	}
	for _, k := range removes {
		delete(next, k)
	}

	return &EvalOutput{
		Item:             next,
		ReturnAttributes: returnAttributes(in.ReturnValues, touched, item, next),
	}, nil
}

func returnAttributes(rv types.ReturnValue, touched map[string]bool, before, after map[string]types.AttributeValue) map[string]types.AttributeValue {
	pick := func(src map[string]types.AttributeValue) map[string]types.AttributeValue {
		out := make(map[string]types.AttributeValue)
		for k := range touched {
			if v, ok := src[k]; ok {
				out[k] = v
			}
		}
		return out
	}
	switch rv {
	case types.ReturnValueAllOld:
		if len(before) == 0 {
			return nil
		}
		return before
	case types.ReturnValueAllNew:
		return after
	case types.ReturnValueUpdatedOld:
		return pick(before)
	case types.ReturnValueUpdatedNew:
		return pick(after)
	}
	return nil
}
