package expr

import (
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokLBrack
	tokRBrack
)

var tokenNames = map[tokenKind]string{
	tokEOF:    "end of expression",
	tokIdent:  "identifier",
	tokInt:    "integer",
	tokFloat:  "number",
	tokString: "string",
	tokDot:    "'.'",
	tokComma:  "','",
	tokLParen: "'('",
	tokRParen: "')'",
	tokLBrack: "'['",
	tokRBrack: "']'",
}

var punct = map[byte]tokenKind{
	'.': tokDot, ',': tokComma, '(': tokLParen, ')': tokRParen, '[': tokLBrack, ']': tokRBrack,
}

func (k tokenKind) String() string { return tokenNames[k] }

type token struct {
	kind tokenKind
	text string // raw text; unquoted content for strings
	pos  int    // offset within the expression source
}

// lexer splits expression source into tokens. base is the offset of src
// within the enclosing template, so errors point into the original string.
type lexer struct {
	src  string
	base int
	pos  int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *lexer) errorf(at int, msg string) *SyntaxError {
	end := at + 12
	if end > len(l.src) {
		end = len(l.src)
	}
	if at > len(l.src) {
		at = len(l.src)
	}
	return &SyntaxError{Fragment: l.src[at:end], Offset: l.base + at, Msg: msg}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n' || l.src[l.pos] == '\r') {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.src[l.pos]
	if k, ok := punct[c]; ok {
		l.pos++
		return token{kind: k, text: string(c), pos: start}, nil
	}
	switch {
	case isIdentStart(c):
		l.pos++
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	case isDigit(c) || (c == '-' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		l.pos++
		kind := tokInt
		for l.pos < len(l.src) {
			d := l.src[l.pos]
			if isDigit(d) {
				l.pos++
				continue
			}
			if d == '.' && kind == tokInt && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
				kind = tokFloat
				l.pos++
				continue
			}
			break
		}
		return token{kind: kind, text: l.src[start:l.pos], pos: start}, nil
	case c == '\'' || c == '"':
		return l.lexString(c)
	}
	return token{}, l.errorf(start, "unexpected character "+string(c))
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.src):
			l.pos++
			switch e := l.src[l.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
		case c == quote:
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		default:
			b.WriteByte(c)
		}
		l.pos++
	}
	return token{}, l.errorf(start, "unterminated string literal")
}

// scanClose finds the "}}" closing an expression block that starts at from,
// skipping over quoted strings. It returns -1 when there is none.
func scanClose(s string, from int) int {
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			return i
		}
	}
	return -1
}
