// Package query builds issue listing requests. It covers two inputs: the
// board's filter selection (Params) and the --where expression language of
// `deck issues list`:
//
//	status=todo AND priority>=medium
//	(label=bug OR label=regression) AND NOT assignee=none
//	repo=acme/api AND updated>7d
//	title~"login page"
//
// Comparisons that the backend understands are pushed down as listing
// parameters; the rest is evaluated client side.
package query

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a lexer token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenString
	TokenEquals    // =
	TokenNotEquals // !=
	TokenContains  // ~
	TokenLess      // <
	TokenLessEq    // <=
	TokenGreater   // >
	TokenGreaterEq // >=
	TokenAnd
	TokenOr
	TokenNot
	TokenLParen
	TokenRParen
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "end of input",
	TokenIdent:     "identifier",
	TokenString:    "string",
	TokenEquals:    "=",
	TokenNotEquals: "!=",
	TokenContains:  "~",
	TokenLess:      "<",
	TokenLessEq:    "<=",
	TokenGreater:   ">",
	TokenGreaterEq: ">=",
	TokenAnd:       "AND",
	TokenOr:        "OR",
	TokenNot:       "NOT",
	TokenLParen:    "(",
	TokenRParen:    ")",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is a lexeme with its byte offset in the input.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Lexer tokenizes a query string.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input string.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

func (l *Lexer) peekRune() (rune, int) {
	if l.pos >= len(l.input) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(l.input[l.pos:])
}

// isIdentRune allows repository names (owner/repo), dates and compact
// durations to be written without quotes.
func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_-./:#+", r)
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	for {
		r, w := l.peekRune()
		if w == 0 || !unicode.IsSpace(r) {
			break
		}
		l.pos += w
	}

	start := l.pos
	r, w := l.peekRune()
	if w == 0 {
		return Token{Type: TokenEOF, Pos: start}, nil
	}

	two := func(next byte, with, without TokenType) Token {
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == next {
			l.pos += 2
			return Token{Type: with, Value: l.input[start:l.pos], Pos: start}
		}
		l.pos++
		return Token{Type: without, Value: l.input[start:l.pos], Pos: start}
	}

	switch r {
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Pos: start}, nil
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Pos: start}, nil
	case '=':
		l.pos++
		return Token{Type: TokenEquals, Value: "=", Pos: start}, nil
	case '~':
		l.pos++
		return Token{Type: TokenContains, Value: "~", Pos: start}, nil
	case '<':
		return two('=', TokenLessEq, TokenLess), nil
	case '>':
		return two('=', TokenGreaterEq, TokenGreater), nil
	case '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return Token{Type: TokenNotEquals, Value: "!=", Pos: start}, nil
		}
		return Token{}, fmt.Errorf("unexpected '!' at position %d (did you mean '!=')", start)
	case '"', '\'':
		return l.lexString(r)
	}

	if !isIdentRune(r) {
		return Token{}, fmt.Errorf("unexpected character %q at position %d", r, start)
	}
	for {
		r, w := l.peekRune()
		if w == 0 || !isIdentRune(r) {
			break
		}
		l.pos += w
	}
	word := l.input[start:l.pos]
	switch strings.ToUpper(word) {
	case "AND":
		return Token{Type: TokenAnd, Value: word, Pos: start}, nil
	case "OR":
		return Token{Type: TokenOr, Value: word, Pos: start}, nil
	case "NOT":
		return Token{Type: TokenNot, Value: word, Pos: start}, nil
	}
	return Token{Type: TokenIdent, Value: word, Pos: start}, nil
}

func (l *Lexer) lexString(quote rune) (Token, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for {
		r, w := l.peekRune()
		if w == 0 {
			return Token{}, fmt.Errorf("unterminated string starting at position %d", start)
		}
		l.pos += w
		switch r {
		case quote:
			return Token{Type: TokenString, Value: sb.String(), Pos: start}, nil
		case '\\':
			esc, ew := l.peekRune()
			if ew == 0 {
				return Token{}, fmt.Errorf("unterminated string starting at position %d", start)
			}
			l.pos += ew
			sb.WriteRune(esc)
		default:
			sb.WriteRune(r)
		}
	}
}

// Tokenize returns every token of input, ending with TokenEOF.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var out []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Type == TokenEOF {
			return out, nil
		}
	}
}
