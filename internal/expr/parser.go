package expr

import (
	"strconv"

	"go-workflow/internal/model"
)

// parser is a recursive-descent parser over the closed grammar
//
//	expr    = primary { "." ident [ "(" [ args ] ")" ] | "[" expr "]" }
//	primary = ident | string | number | "true" | "false" | "null" | "(" expr ")"
//	args    = expr { "," expr }
type parser struct {
	lex *lexer
	tok token
}

// ParseExpr parses a bare expression. base is its offset inside the
// enclosing template and only affects error offsets.
func ParseExpr(src string, base int) (Node, error) {
	p := &parser{lex: &lexer{src: src, base: base}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, p.lex.errorf(0, "empty expression")
	}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.unexpected()
	}
	return n, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) unexpected() error {
	return p.lex.errorf(p.tok.pos, "unexpected "+p.tok.kind.String())
}

func (p *parser) expect(k tokenKind) (token, error) {
	if p.tok.kind != k {
		return token{}, p.lex.errorf(p.tok.pos, "expected "+k.String()+", found "+p.tok.kind.String())
	}
	t := p.tok
	return t, p.advance()
}

func (p *parser) offset(pos int) int { return p.lex.base + pos }

func (p *parser) parseExpr() (Node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.tok.kind {
		case tokDot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind == tokInt {
				// seq.0 is shorthand for seq[0]
				idx, _ := strconv.ParseInt(p.tok.text, 10, 64)
				key := &Literal{Value: model.Int(idx), Offset: p.offset(p.tok.pos)}
				n = &Index{X: n, Key: key, Offset: key.Offset}
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			name, err := p.expect(tokIdent)
			if err != nil {
				return nil, err
			}
			if p.tok.kind == tokLParen {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				n = &Call{Recv: n, Name: name.text, Args: args, Offset: p.offset(name.pos)}
				continue
			}
			n = &Attr{X: n, Name: name.text, Offset: p.offset(name.pos)}
		case tokLBrack:
			open := p.tok.pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBrack); err != nil {
				return nil, err
			}
			n = &Index{X: n, Key: key, Offset: p.offset(open)}
		default:
			return n, nil
		}
	}
}

func (p *parser) parseArgs() ([]Node, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var args []Node
	if p.tok.kind == tokRParen {
		return args, p.advance()
	}
	for {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return args, nil
	}
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.tok
	off := p.offset(t.pos)
	switch t.kind {
	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch t.text {
		case "true":
			return &Literal{Value: model.Bool(true), Offset: off}, nil
		case "false":
			return &Literal{Value: model.Bool(false), Offset: off}, nil
		case "null":
			return &Literal{Value: model.Null(), Offset: off}, nil
		}
		return &Ident{Name: t.text, Offset: off}, nil
	case tokString:
		return &Literal{Value: model.String(t.text), Offset: off}, p.advance()
	case tokInt:
		i, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, p.lex.errorf(t.pos, "integer out of range")
		}
		return &Literal{Value: model.Int(i), Offset: off}, p.advance()
	case tokFloat:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.lex.errorf(t.pos, "bad number")
		}
		return &Literal{Value: model.Float(f), Offset: off}, p.advance()
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return n, nil
	}
	return nil, p.unexpected()
}
