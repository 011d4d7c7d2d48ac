package conditionexpr

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

type env struct {
	input EvalInput
	doc   map[string]types.AttributeValue
}

// Condition is a parsed condition expression.
type Condition interface {
	eval(env) (bool, error)
}

type andCond struct{ left, right Condition }

func (c andCond) eval(e env) (bool, error) {
	l, err := c.left.eval(e)
	if err != nil || !l {
		return false, err
	}
	return c.right.eval(e)
}

type orCond struct{ left, right Condition }

func (c orCond) eval(e env) (bool, error) {
	l, err := c.left.eval(e)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return c.right.eval(e)
}

type notCond struct{ inner Condition }

func (c notCond) eval(e env) (bool, error) {
	v, err := c.inner.eval(e)
	return !v, err
}

// operand is either a document path or a value placeholder.
type operand struct {
	name       string // raw attribute name
	nameAlias  string // #alias
	valueAlias string // :alias
}

func (o operand) isPath() bool { return o.valueAlias == "" }

func (o operand) resolveName(e env) (string, error) {
	if o.nameAlias == "" {
		return o.name, nil
	}
	n, ok := e.input.ExpressionNames[o.nameAlias]
	if !ok {
		return "", fmt.Errorf("expression attribute name %s not defined", o.nameAlias)
	}
	return n, nil
}

// value returns the operand's value and whether it is present.
func (o operand) value(e env) (types.AttributeValue, bool, error) {
	if !o.isPath() {
		v, ok := e.input.ExpressionValues[o.valueAlias]
		if !ok {
			return nil, false, fmt.Errorf("expression attribute value %s not defined", o.valueAlias)
		}
		return v, true, nil
	}
	name, err := o.resolveName(e)
	if err != nil {
		return nil, false, err
	}
	v, ok := e.doc[name]
	return v, ok, nil
}

type existsCond struct {
	path   operand
	negate bool
}

func (c existsCond) eval(e env) (bool, error) {
	_, ok, err := c.path.value(e)
	if err != nil {
		return false, err
	}
	return ok != c.negate, nil
}

type beginsWithCond struct{ path, prefix operand }

func (c beginsWithCond) eval(e env) (bool, error) {
	v, ok, err := c.path.value(e)
	if err != nil || !ok {
		return false, err
	}
	p, _, err := c.prefix.value(e)
	if err != nil {
		return false, err
	}
	switch v := v.(type) {
	case *types.AttributeValueMemberS:
		if ps, isS := p.(*types.AttributeValueMemberS); isS {
			return strings.HasPrefix(v.Value, ps.Value), nil
		}
	case *types.AttributeValueMemberB:
		if pb, isB := p.(*types.AttributeValueMemberB); isB {
			return bytes.HasPrefix(v.Value, pb.Value), nil
		}
	}
	return false, nil
}

type compareCond struct {
	op          string
	left, right operand
}

func (c compareCond) eval(e env) (bool, error) {
	l, lok, err := c.left.value(e)
	if err != nil {
		return false, err
	}
	r, rok, err := c.right.value(e)
	if err != nil {
		return false, err
	}
	if !lok || !rok {
		return c.op == "<>", nil
	}
	cmp, ok, err := compare(l, r)
	if err != nil {
		return false, err
	}
	if !ok {
		return c.op == "<>", nil
	}
	switch c.op {
	case "=":
		return cmp == 0, nil
	case "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unknown comparator %q", c.op)
}

type betweenCond struct{ val, lo, hi operand }

func (c betweenCond) eval(e env) (bool, error) {
	ge, err := compareCond{op: ">=", left: c.val, right: c.lo}.eval(e)
	if err != nil || !ge {
		return false, err
	}
	return compareCond{op: "<=", left: c.val, right: c.hi}.eval(e)
}

// compare orders two scalars of the same type. Values of different types are not comparable.
func compare(a, b types.AttributeValue) (int, bool, error) {
	switch a := a.(type) {
	case *types.AttributeValueMemberS:
		if b, ok := b.(*types.AttributeValueMemberS); ok {
			return strings.Compare(a.Value, b.Value), true, nil
		}
	case *types.AttributeValueMemberN:
		if b, ok := b.(*types.AttributeValueMemberN); ok {
			x, err := decimal.NewFromString(a.Value)
			if err != nil {
				return 0, false, fmt.Errorf("parse number %q: %w", a.Value, err)
			}
			y, err := decimal.NewFromString(b.Value)
			if err != nil {
				return 0, false, fmt.Errorf("parse number %q: %w", b.Value, err)
			}
			return x.Cmp(y), true, nil
		}
	case *types.AttributeValueMemberB:
		if b, ok := b.(*types.AttributeValueMemberB); ok {
			return bytes.Compare(a.Value, b.Value), true, nil
		}
	case *types.AttributeValueMemberBOOL:
		if b, ok := b.(*types.AttributeValueMemberBOOL); ok {
			if a.Value == b.Value {
				return 0, true, nil
			}
			if !a.Value {
				return -1, true, nil
			}
			return 1, true, nil
		}
	case *types.AttributeValueMemberNULL:
		if _, ok := b.(*types.AttributeValueMemberNULL); ok {
			return 0, true, nil
		}
	}
	return 0, false, nil
}
