package expr

import (
	"strings"
)

type partKind int

const (
	partText partKind = iota
	partExpr
	partSecret
	partEnv
)

type part struct {
	kind   partKind
	text   string // literal text, secret name or env var name
	node   Node
	offset int
}

// Template is a parsed string leaf. Templates are immutable and safe to
// share between goroutines.
type Template struct {
	src   string
	parts []part
}

// Source returns the original text.
func (t *Template) Source() string { return t.src }

// IsLiteral reports whether the template contains no substitutions.
func (t *Template) IsLiteral() bool {
	for _, p := range t.parts {
		if p.kind != partText {
			return false
		}
	}
	return true
}

// single returns the only part when the whole string is one substitution.
func (t *Template) single() (part, bool) {
	if len(t.parts) == 1 && t.parts[0].kind != partText {
		return t.parts[0], true
	}
	return part{}, false
}

const (
	openExpr   = "${{"
	closeExpr  = "}}"
	openSecret = "@secrets{"
)

// Parse splits src into literal text and substitutions. With envVars set,
// ${VAR} is also recognised as an environment reference; that form is only
// enabled for connection fields.
func Parse(src string, envVars bool) (*Template, error) {
	t := &Template{src: src}
	var lit strings.Builder
	litStart := 0
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, part{kind: partText, text: lit.String(), offset: litStart})
			lit.Reset()
		}
	}

	i := 0
	for i < len(src) {
		rest := src[i:]
		switch {
		case strings.HasPrefix(rest, openExpr):
			end := scanClose(src, i+len(openExpr))
			if end < 0 {
				return nil, fragmentError(src, i, "unterminated ${{ block")
			}
			inner := src[i+len(openExpr) : end]
			node, err := ParseExpr(inner, i+len(openExpr))
			if err != nil {
				return nil, err
			}
			flush()
			t.parts = append(t.parts, part{kind: partExpr, node: node, offset: i})
			i = end + len(closeExpr)
			litStart = i
		case strings.HasPrefix(rest, openSecret):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return nil, fragmentError(src, i, "unterminated @secrets{ reference")
			}
			name := strings.TrimSpace(rest[len(openSecret):end])
			if !validName(name) {
				return nil, fragmentError(src, i, "bad secret name")
			}
			flush()
			t.parts = append(t.parts, part{kind: partSecret, text: name, offset: i})
			i += end + 1
			litStart = i
		case envVars && strings.HasPrefix(rest, "${"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return nil, fragmentError(src, i, "unterminated ${ reference")
			}
			name := strings.TrimSpace(rest[2:end])
			if !validName(name) {
				return nil, fragmentError(src, i, "bad environment variable name")
			}
			flush()
			t.parts = append(t.parts, part{kind: partEnv, text: name, offset: i})
			i += end + 1
			litStart = i
		default:
			if lit.Len() == 0 {
				litStart = i
			}
			lit.WriteByte(src[i])
			i++
		}
	}
	flush()
	return t, nil
}

func validName(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) && s[i] != '.' {
			return false
		}
	}
	return true
}

func fragmentError(src string, at int, msg string) *SyntaxError {
	end := at + 16
	if end > len(src) {
		end = len(src)
	}
	return &SyntaxError{Fragment: src[at:end], Offset: at, Msg: msg}
}
