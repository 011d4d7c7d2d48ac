// Package conditionexpr evaluates DynamoDB condition and filter expressions
// against a single item.
//
// Supported grammar:
//
//	cond     = and {"OR" and}
//	and      = not {"AND" not}
//	not      = "NOT" not | primary
//	primary  = "(" cond ")" | function | operand comparator operand
//	         | operand "BETWEEN" operand "AND" operand
//	function = attribute_exists(path) | attribute_not_exists(path) | begins_with(path, operand)
//
// Paths are top-level attribute names, either bare or #placeholders.
package conditionexpr

import (
	"fmt"
	"strings"

	"github.com/acksell/tabletconn/dynamodb/ddbstore/exprtoken"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type EvalInput struct {
	ExpressionNames  map[string]string
	ExpressionValues map[string]types.AttributeValue
}

func Parse(condition string) (Condition, error) {
	toks, err := exprtoken.Lex(condition)
	if err != nil {
		return nil, err
	}
	p := &parser{s: exprtoken.NewStream(toks)}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.s.Peek(); t.Kind != exprtoken.EOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.Text, t.Pos)
	}
	return cond, nil
}

// Eval parses condition and evaluates it against doc. A nil doc is an absent item.
func Eval(condition string, input EvalInput, doc map[string]types.AttributeValue) (bool, error) {
	cond, err := Parse(condition)
	if err != nil {
		return false, err
	}
	return EvalParsed(cond, input, doc)
}

func EvalParsed(cond Condition, input EvalInput, doc map[string]types.AttributeValue) (bool, error) {
	return cond.eval(env{input: input, doc: doc})
}

type parser struct {
	s *exprtoken.Stream
}

func (p *parser) parseOr() (Condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.s.Peek().Is("OR") {
		p.s.Next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orCond{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Condition, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.s.Peek().Is("AND") {
		p.s.Next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andCond{left, right}
	}
	return left, nil
}

func (p *parser) parseNot() (Condition, error) {
	if p.s.Peek().Is("NOT") {
		p.s.Next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notCond{inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Condition, error) {
	t := p.s.Peek()
	if t.Kind == exprtoken.LParen {
		p.s.Next()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.s.Expect(exprtoken.RParen); err != nil {
			return nil, err
		}
		return cond, nil
	}
	if t.Kind == exprtoken.Ident && p.s.PeekN(1).Kind == exprtoken.LParen {
		return p.parseFunction()
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	next := p.s.Next()
	switch {
	case next.Kind == exprtoken.Comparator:
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return compareCond{op: next.Text, left: left, right: right}, nil
	case next.Is("BETWEEN"):
		lo, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		if and := p.s.Next(); !and.Is("AND") {
			return nil, fmt.Errorf("expected AND in BETWEEN at position %d", and.Pos)
		}
		hi, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return betweenCond{val: left, lo: lo, hi: hi}, nil
	}
	return nil, fmt.Errorf("expected comparator at position %d, got %q", next.Pos, next.Text)
}

func (p *parser) parseFunction() (Condition, error) {
	fn := p.s.Next()
	p.s.Next() // (
	var args []operand
	for {
		arg, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.s.Peek().Kind != exprtoken.Comma {
			break
		}
		p.s.Next()
	}
	if _, err := p.s.Expect(exprtoken.RParen); err != nil {
		return nil, err
	}

	name := strings.ToLower(fn.Text)
	want := map[string]int{"attribute_exists": 1, "attribute_not_exists": 1, "begins_with": 2}
	n, known := want[name]
	if !known {
		return nil, fmt.Errorf("unsupported function %s", fn.Text)
	}
	if len(args) != n {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", name, n, len(args))
	}
	if !args[0].isPath() {
		return nil, fmt.Errorf("%s: first argument must be an attribute path", name)
	}
	switch name {
	case "attribute_exists":
		return existsCond{path: args[0]}, nil
	case "attribute_not_exists":
		return existsCond{path: args[0], negate: true}, nil
	}
	return beginsWithCond{path: args[0], prefix: args[1]}, nil
}

func (p *parser) parseOperand() (operand, error) {
	t := p.s.Next()
	switch t.Kind {
	case exprtoken.NamePlaceholder:
		return operand{nameAlias: t.Text}, nil
	case exprtoken.ValuePlaceholder:
		return operand{valueAlias: t.Text}, nil
	case exprtoken.Ident:
		if exprtoken.IsReservedName(t.Text) {
			return operand{}, fmt.Errorf("attribute name %q is reserved, use ExpressionAttributeNames instead", t.Text)
		}
		return operand{name: t.Text}, nil
	}
	return operand{}, fmt.Errorf("expected operand at position %d, got %s", t.Pos, t.Kind)
}
