package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a path does not resolve.
var ErrNotFound = errors.New("not found")

// Segment is one step of a Path: a mapping key or a sequence index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is a parsed dotted/bracketed reference such as params.source.schema
// or matrix.tables[0].
type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if !seg.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// Root returns the first key of the path.
func (p Path) Root() string {
	if len(p) == 0 || p[0].IsIndex {
		return ""
	}
	return p[0].Key
}

// ParsePath parses dotted keys with optional [n] or ["key"] subscripts.
func ParsePath(s string) (Path, error) {
	var out Path
	i := 0
	expectKey := true
	for i < len(s) {
		switch c := s[i]; {
		case c == '.':
			if expectKey {
				return nil, fmt.Errorf("path %q: empty segment at %d", s, i)
			}
			expectKey = true
			i++
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("path %q: unterminated subscript at %d", s, i)
			}
			inner := strings.TrimSpace(s[i+1 : i+end])
			if unq, err := strconv.Unquote(inner); err == nil {
				out = append(out, Segment{Key: unq})
			} else if n, err := strconv.Atoi(inner); err == nil {
				out = append(out, Segment{Index: n, IsIndex: true})
			} else {
				return nil, fmt.Errorf("path %q: bad subscript %q", s, inner)
			}
			expectKey = false
			i += end + 1
		default:
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			out = append(out, Segment{Key: s[i:j]})
			expectKey = false
			i = j
		}
	}
	if len(out) == 0 || expectKey {
		return nil, fmt.Errorf("path %q: incomplete", s)
	}
	return out, nil
}

// Lookup walks path from v. Missing keys, out-of-range indexes and
// traversal into scalars report ErrNotFound together with the prefix that
// failed to resolve.
func Lookup(v Value, path Path) (Value, error) {
	cur := v
	for i, seg := range path {
		var (
			next Value
			ok   bool
		)
		switch {
		case seg.IsIndex:
			next, ok = cur.Index(seg.Index)
		case cur.Kind() == KindSeq:
			if n, err := strconv.Atoi(seg.Key); err == nil {
				next, ok = cur.Index(n)
			}
		default:
			next, ok = cur.Get(seg.Key)
		}
		if !ok {
			return Value{}, fmt.Errorf("%s: %w", path[:i+1], ErrNotFound)
		}
		cur = next
	}
	return cur, nil
}
