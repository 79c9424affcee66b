package query

import (
	"fmt"
	"strings"
)

// Node is a parsed expression.
type Node interface {
	node()
	String() string
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpContains
	OpLt
	OpLe
	OpGt
	OpGe
)

var opNames = [...]string{"=", "!=", "~", "<", "<=", ">", ">="}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

func opFor(t TokenType) (Op, bool) {
	switch t {
	case TokenEquals:
		return OpEq, true
	case TokenNotEquals:
		return OpNe, true
	case TokenContains:
		return OpContains, true
	case TokenLess:
		return OpLt, true
	case TokenLessEq:
		return OpLe, true
	case TokenGreater:
		return OpGt, true
	case TokenGreaterEq:
		return OpGe, true
	}
	return 0, false
}

// Compare is field OP value. Field is lower-cased.
type Compare struct {
	Field string
	Op    Op
	Value string
}

// And matches when every child matches.
type And struct{ Children []Node }

// Or matches when any child matches.
type Or struct{ Children []Node }

// Not inverts its child.
type Not struct{ Child Node }

func (*Compare) node() {}
func (*And) node()     {}
func (*Or) node()      {}
func (*Not) node()     {}

func (c *Compare) String() string {
	v := c.Value
	if v == "" || strings.ContainsAny(v, " ()\"") {
		v = fmt.Sprintf("%q", v)
	}
	return c.Field + c.Op.String() + v
}

func (a *And) String() string { return joinNodes(a.Children, " AND ") }
func (o *Or) String() string  { return joinNodes(o.Children, " OR ") }
func (n *Not) String() string { return "NOT " + n.Child.String() }

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
		if _, ok := n.(*Or); ok && sep == " AND " {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, sep)
}

// Parser is a recursive descent parser over the token stream:
//
//	or      := and { OR and }
//	and     := unary { AND unary }
//	unary   := NOT unary | primary
//	primary := '(' or ')' | IDENT op (IDENT | STRING)
type Parser struct {
	tokens []Token
	pos    int
}

// Parse parses input into an expression tree.
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("empty query")
	}
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &Parser{tokens: tokens}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected %s %q at position %d", tok.Type, tok.Value, tok.Pos)
	}
	return n, nil
}

func (p *Parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for p.peek().Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &Or{Children: children}, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []Node{left}
	for p.peek().Type == TokenAnd {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return left, nil
	}
	return &And{Children: children}, nil
}

func (p *Parser) parseUnary() (Node, error) {
	if p.peek().Type == TokenNot {
		p.advance()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Child: child}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.advance()
	switch tok.Type {
	case TokenLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.Type != TokenRParen {
			return nil, fmt.Errorf("expected ')' at position %d, got %s", closing.Pos, closing.Type)
		}
		return n, nil
	case TokenIdent:
		opTok := p.advance()
		op, ok := opFor(opTok.Type)
		if !ok {
			return nil, fmt.Errorf("expected comparison operator after %q at position %d, got %s", tok.Value, opTok.Pos, opTok.Type)
		}
		val := p.advance()
		if val.Type != TokenIdent && val.Type != TokenString {
			return nil, fmt.Errorf("expected value after %s%s at position %d, got %s", tok.Value, op, val.Pos, val.Type)
		}
		return &Compare{Field: strings.ToLower(tok.Value), Op: op, Value: val.Value}, nil
	}
	return nil, fmt.Errorf("unexpected %s at position %d", tok.Type, tok.Pos)
}
