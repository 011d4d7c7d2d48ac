package updateexpr

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Expression is a parsed update expression.
type Expression struct {
	Set    []SetAction
	Remove []Path
}

// SetAction assigns Value to Path.
type SetAction struct {
	Path  Path
	Value Value
}

// Path names a top-level attribute, bare or through a #placeholder.
type Path struct {
	Name  string
	Alias string
}

func (p Path) resolve(names map[string]string) (string, error) {
	if p.Alias == "" {
		return p.Name, nil
	}
	n, ok := names[p.Alias]
	if !ok {
		return "", fmt.Errorf("expression attribute name %s not defined", p.Alias)
	}
	return n, nil
}

// Value is the right-hand side of a SET action.
type Value interface {
	eval(in EvalInput, item map[string]types.AttributeValue) (types.AttributeValue, error)
}

// Placeholder is a :value reference.
type Placeholder struct {
	Alias string
}

func (p Placeholder) eval(in EvalInput, _ map[string]types.AttributeValue) (types.AttributeValue, error) {
	v, ok := in.ExpressionValues[p.Alias]
	if !ok {
		return nil, fmt.Errorf("expression attribute value %s not defined", p.Alias)
	}
	return v, nil
}

// PathValue reads the current value of another attribute.
type PathValue struct {
	Path Path
}

func (p PathValue) eval(in EvalInput, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	name, err := p.Path.resolve(in.ExpressionNames)
	if err != nil {
		return nil, err
	}
	v, ok := item[name]
	if !ok {
		return nil, fmt.Errorf("attribute %q referenced in update does not exist", name)
	}
	return v, nil
}

// IfNotExists yields the attribute's current value, or Default when it is absent.
type IfNotExists struct {
	Path    Path
	Default Value
}

func (f IfNotExists) eval(in EvalInput, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	name, err := f.Path.resolve(in.ExpressionNames)
	if err != nil {
		return nil, err
	}
	if v, ok := item[name]; ok {
		return v, nil
	}
	return f.Default.eval(in, item)
}

// Arithmetic adds or subtracts two numbers.
type Arithmetic struct {
	Left     Value
	Operator string // "+" or "-"
	Right    Value
}

func (a Arithmetic) eval(in EvalInput, item map[string]types.AttributeValue) (types.AttributeValue, error) {
	l, err := a.Left.eval(in, item)
	if err != nil {
		return nil, err
	}
	r, err := a.Right.eval(in, item)
	if err != nil {
		return nil, err
	}
	ln, lok := l.(*types.AttributeValueMemberN)
	rn, rok := r.(*types.AttributeValueMemberN)
	if !lok || !rok {
		return nil, fmt.Errorf("arithmetic operands must be numbers, got %T and %T", l, r)
	}
	return arith(ln.Value, a.Operator, rn.Value)
}

// arith adds or subtracts two numbers exactly.
func arith(x, op, y string) (types.AttributeValue, error) {
	xd, err := decimal.NewFromString(x)
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", x, err)
	}
	yd, err := decimal.NewFromString(y)
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", y, err)
	}
	if op == "-" {
		return &types.AttributeValueMemberN{Value: xd.Sub(yd).String()}, nil
	}
	return &types.AttributeValueMemberN{Value: xd.Add(yd).String()}, nil
}
