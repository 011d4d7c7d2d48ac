// Package updateexpr applies DynamoDB update expressions to an item.
//
// Supported clauses, in any order, each at most once:
//
//	SET path = value [, path = value] ...
//	REMOVE path [, path] ...
//
// where value is a :placeholder, a path, if_not_exists(path, value),
// or value + value / value - value on numbers. ADD and DELETE are not supported.
package updateexpr

import (
	"fmt"
	"strings"

	"github.com/acksell/tabletconn/dynamodb/ddbstore/exprtoken"
)

func Parse(expr string) (*Expression, error) {
	toks, err := exprtoken.Lex(expr)
	if err != nil {
		return nil, err
	}
	s := exprtoken.NewStream(toks)
	out := &Expression{}
	seen := make(map[string]bool)
	for s.Peek().Kind != exprtoken.EOF {
		kw := s.Next()
		clause := strings.ToUpper(kw.Text)
		if kw.Kind != exprtoken.Ident {
			return nil, fmt.Errorf("expected SET or REMOVE at position %d, got %q", kw.Pos, kw.Text)
		}
		if seen[clause] {
			return nil, fmt.Errorf("%s clause given more than once", clause)
		}
		seen[clause] = true
		switch clause {
		case "SET":
			if err := parseSet(s, out); err != nil {
				return nil, err
			}
		case "REMOVE":
			if err := parseRemove(s, out); err != nil {
				return nil, err
			}
		case "ADD", "DELETE":
			return nil, fmt.Errorf("%s clause is not supported", clause)
		default:
			return nil, fmt.Errorf("expected SET or REMOVE at position %d, got %q", kw.Pos, kw.Text)
		}
	}
	if len(out.Set) == 0 && len(out.Remove) == 0 {
		return nil, fmt.Errorf("update expression is empty")
	}
	return out, nil
}

func parseSet(s *exprtoken.Stream, out *Expression) error {
	for {
		p, err := parsePath(s)
		if err != nil {
			return err
		}
		if eq := s.Next(); eq.Kind != exprtoken.Comparator || eq.Text != "=" {
			return fmt.Errorf("expected '=' at position %d, got %q", eq.Pos, eq.Text)
		}
		v, err := parseValue(s)
		if err != nil {
			return err
		}
		out.Set = append(out.Set, SetAction{Path: p, Value: v})
		if s.Peek().Kind != exprtoken.Comma {
			return nil
		}
		s.Next()
	}
}

func parseRemove(s *exprtoken.Stream, out *Expression) error {
	for {
		p, err := parsePath(s)
		if err != nil {
			return err
		}
		out.Remove = append(out.Remove, p)
		if s.Peek().Kind != exprtoken.Comma {
			return nil
		}
		s.Next()
	}
}

func parseValue(s *exprtoken.Stream) (Value, error) {
	left, err := parseOperand(s)
	if err != nil {
		return nil, err
	}
	if k := s.Peek().Kind; k == exprtoken.Plus || k == exprtoken.Minus {
		op := s.Next()
		right, err := parseOperand(s)
		if err != nil {
			return nil, err
		}
		return Arithmetic{Left: left, Operator: op.Text, Right: right}, nil
	}
	return left, nil
}

func parseOperand(s *exprtoken.Stream) (Value, error) {
	t := s.Peek()
	switch {
	case t.Kind == exprtoken.ValuePlaceholder:
		s.Next()
		return Placeholder{Alias: t.Text}, nil
	case t.Kind == exprtoken.Ident && s.PeekN(1).Kind == exprtoken.LParen:
		return parseFunction(s)
	}
	p, err := parsePath(s)
	if err != nil {
		return nil, err
	}
	return PathValue{Path: p}, nil
}

func parseFunction(s *exprtoken.Stream) (Value, error) {
	fn := s.Next()
	s.Next() // (
	if !strings.EqualFold(fn.Text, "if_not_exists") {
		return nil, fmt.Errorf("unsupported function %s", fn.Text)
	}
	p, err := parsePath(s)
	if err != nil {
		return nil, err
	}
	if _, err := s.Expect(exprtoken.Comma); err != nil {
		return nil, err
	}
	def, err := parseOperand(s)
	if err != nil {
		return nil, err
	}
	if _, err := s.Expect(exprtoken.RParen); err != nil {
		return nil, err
	}
	return IfNotExists{Path: p, Default: def}, nil
}

func parsePath(s *exprtoken.Stream) (Path, error) {
	t := s.Next()
	switch t.Kind {
	case exprtoken.NamePlaceholder:
		return Path{Alias: t.Text}, nil
	case exprtoken.Ident:
		if exprtoken.IsReservedName(t.Text) {
			return Path{}, fmt.Errorf("attribute name %q is reserved, use ExpressionAttributeNames instead", t.Text)
		}
		return Path{Name: t.Text}, nil
	}
	return Path{}, fmt.Errorf("expected attribute path at position %d, got %s", t.Pos, t.Kind)
}
