// Package exprtoken splits DynamoDB condition and update expressions into tokens.
package exprtoken

import (
	"fmt"
	"strings"
)

type Kind int

const (
	EOF Kind = iota
	Ident
	NamePlaceholder  // #name
	ValuePlaceholder // :value
	LParen
	RParen
	Comma
	Comparator // = <> < <= > >=
	Plus
	Minus
)

func (k Kind) String() string {
	switch k {
	case EOF:
		return "end of expression"
	case Ident:
		return "identifier"
	case NamePlaceholder:
		return "name placeholder"
	case ValuePlaceholder:
		return "value placeholder"
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Comma:
		return "','"
	case Comparator:
		return "comparator"
	case Plus:
		return "'+'"
	case Minus:
		return "'-'"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type Token struct {
	Kind Kind
	Text string
	Pos  int
}

// Is reports whether the token is the identifier kw, compared case-insensitively.
func (t Token) Is(kw string) bool {
	return t.Kind == Ident && strings.EqualFold(t.Text, kw)
}

func Lex(expr string) ([]Token, error) {
	var toks []Token
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, Token{LParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, Token{RParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, Token{Comma, ",", i})
			i++
		case c == '+':
			toks = append(toks, Token{Plus, "+", i})
			i++
		case c == '-':
			toks = append(toks, Token{Minus, "-", i})
			i++
		case c == '=':
			toks = append(toks, Token{Comparator, "=", i})
			i++
		case c == '<' || c == '>':
			op := string(c)
			if i+1 < len(expr) && (expr[i+1] == '=' || (c == '<' && expr[i+1] == '>')) {
				op += string(expr[i+1])
			}
			toks = append(toks, Token{Comparator, op, i})
			i += len(op)
		case c == '#' || c == ':':
			j := i + 1
			for j < len(expr) && isIdentByte(expr[j]) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("empty placeholder at position %d", i)
			}
			kind := NamePlaceholder
			if c == ':' {
				kind = ValuePlaceholder
			}
			toks = append(toks, Token{kind, expr[i:j], i})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(expr) && isIdentByte(expr[j]) {
				j++
			}
			toks = append(toks, Token{Ident, expr[i:j], i})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	return append(toks, Token{Kind: EOF, Pos: len(expr)}), nil
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// Stream is a cursor over lexed tokens.
type Stream struct {
	toks []Token
	pos  int
}

func NewStream(toks []Token) *Stream {
	return &Stream{toks: toks}
}

func (s *Stream) Peek() Token { return s.toks[s.pos] }

// PeekN looks n tokens ahead of the current one.
func (s *Stream) PeekN(n int) Token {
	if s.pos+n >= len(s.toks) {
		return s.toks[len(s.toks)-1]
	}
	return s.toks[s.pos+n]
}

func (s *Stream) Next() Token {
	t := s.toks[s.pos]
	if t.Kind != EOF {
		s.pos++
	}
	return t
}

func (s *Stream) Expect(k Kind) (Token, error) {
	t := s.Next()
	if t.Kind != k {
		return t, fmt.Errorf("expected %s at position %d, got %q", k, t.Pos, t.Text)
	}
	return t, nil
}

// IsReservedName reports whether a bare identifier collides with an expression keyword
// and therefore has to go through ExpressionAttributeNames.
func IsReservedName(name string) bool {
	switch strings.ToUpper(name) {
	case "AND", "OR", "NOT", "BETWEEN", "IN", "SET", "REMOVE", "ADD", "DELETE":
		return true
	}
	return false
}
