package rule

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokLParen
	tokRParen
	tokComma
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer splits a v2 rule into tokens.
type lexer struct {
	rule string
	pos  int
}

func (l *lexer) errorf(pos int, msg string) *ParseError {
	return &ParseError{Rule: l.rule, Pos: pos, Msg: msg}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.rule) && isSpace(l.rule[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.rule) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.rule[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, pos: start}, nil
	case c == '!':
		l.pos++
		return token{kind: tokNot, pos: start}, nil
	case c == '&' || c == '|':
		if l.pos+1 >= len(l.rule) || l.rule[l.pos+1] != c {
			return token{}, l.errorf(start, "expected "+string([]byte{c, c}))
		}
		l.pos += 2
		if c == '&' {
			return token{kind: tokAnd, pos: start}, nil
		}
		return token{kind: tokOr, pos: start}, nil
	case c == '`':
		end := strings.IndexByte(l.rule[start+1:], '`')
		if end < 0 {
			return token{}, l.errorf(start, "unterminated backtick string")
		}
		l.pos = start + 1 + end + 1
		return token{kind: tokString, text: l.rule[start+1 : start+1+end], pos: start}, nil
	case c == '"':
		i := start + 1
		for i < len(l.rule) && l.rule[i] != '"' {
			if l.rule[i] == '\\' {
				i++
			}
			i++
		}
		if i >= len(l.rule) {
			return token{}, l.errorf(start, "unterminated quoted string")
		}
		s, err := strconv.Unquote(l.rule[start : i+1])
		if err != nil {
			return token{}, l.errorf(start, "invalid quoted string")
		}
		l.pos = i + 1
		return token{kind: tokString, text: s, pos: start}, nil
	case isIdentStart(c):
		for l.pos < len(l.rule) && isIdentPart(l.rule[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.rule[start:l.pos], pos: start}, nil
	}

	return token{}, l.errorf(start, "unexpected character "+strconv.QuoteRune(rune(c)))
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// parser is a recursive descent parser over the v2 grammar:
//
//	expr    = and { "||" and }
//	and     = unary { "&&" unary }
//	unary   = "!" unary | "(" expr ")" | matcher
//	matcher = ident "(" [ string { "," string } ] ")"
type parser struct {
	lex   *lexer
	tok   token
	hosts hostSet
}

// ParseV2 extracts hostnames from a Traefik v2/v3 rule expression.
// Hostnames under an odd number of negations are not reported.
func ParseV2(expr string) ([]string, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}

	p := &parser{lex: &lexer{rule: expr}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.parseExpr(false); err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.lex.errorf(p.tok.pos, "unexpected trailing input")
	}
	return p.hosts.list(), nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expect(kind tokenKind, what string) error {
	if p.tok.kind != kind {
		return p.lex.errorf(p.tok.pos, "expected "+what)
	}
	return p.advance()
}

func (p *parser) parseExpr(negated bool) error {
	if err := p.parseAnd(negated); err != nil {
		return err
	}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseAnd(negated); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseAnd(negated bool) error {
	if err := p.parseUnary(negated); err != nil {
		return err
	}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseUnary(negated); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseUnary(negated bool) error {
	switch p.tok.kind {
	case tokNot:
		if err := p.advance(); err != nil {
			return err
		}
		return p.parseUnary(!negated)
	case tokLParen:
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseExpr(negated); err != nil {
			return err
		}
		return p.expect(tokRParen, "')'")
	case tokIdent:
		return p.parseMatcher(negated)
	case tokEOF:
		return p.lex.errorf(p.tok.pos, "unexpected end of rule")
	default:
		return p.lex.errorf(p.tok.pos, "expected matcher")
	}
}

func (p *parser) parseMatcher(negated bool) error {
	name := p.tok.text
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.expect(tokLParen, "'(' after "+name); err != nil {
		return err
	}

	var args []string
	if p.tok.kind != tokRParen {
		for {
			if p.tok.kind != tokString {
				return p.lex.errorf(p.tok.pos, "expected string argument to "+name)
			}
			args = append(args, p.tok.text)
			if err := p.advance(); err != nil {
				return err
			}
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return err
			}
		}
	}
	if err := p.expect(tokRParen, "')' closing "+name); err != nil {
		return err
	}

	if !negated && hostMatcher(name) {
		for _, a := range args {
			p.hosts.add(a)
		}
	}
	return nil
}
