// Package expr parses and evaluates the template language embedded in
// string fields: ${{ <expr> }} blocks, @secrets{name} shorthands and, for
// connection fields, ${VAR} environment references.
package expr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
)

// Scope is what expressions are evaluated against. *scope.Store implements
// it.
type Scope interface {
	LookupPath(ctx context.Context, p model.Path) (model.Value, error)
	Secret(ctx context.Context, name string) (string, error)
	Env(name string) (string, bool)
}

type cacheKey struct {
	src     string
	envVars bool
}

// Evaluator evaluates templates. Parsed templates are cached, so one
// Evaluator should be shared for the lifetime of the process.
type Evaluator struct {
	cache sync.Map // cacheKey -> *Template
}

// New returns an Evaluator with an empty template cache.
func New() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) template(src string, envVars bool) (*Template, error) {
	key := cacheKey{src, envVars}
	if t, ok := e.cache.Load(key); ok {
		return t.(*Template), nil
	}
	t, err := Parse(src, envVars)
	if err != nil {
		return nil, err
	}
	actual, _ := e.cache.LoadOrStore(key, t)
	return actual.(*Template), nil
}

// Render evaluates one string leaf. A string that is exactly one
// substitution yields the typed value; anything else yields text.
func (e *Evaluator) Render(ctx context.Context, sc Scope, src string) (model.Value, error) {
	return e.render(ctx, sc, src, false)
}

// RenderField is Render with ${VAR} environment references enabled, as
// used for connection descriptor fields.
func (e *Evaluator) RenderField(ctx context.Context, sc Scope, src string) (model.Value, error) {
	return e.render(ctx, sc, src, true)
}

func (e *Evaluator) render(ctx context.Context, sc Scope, src string, envVars bool) (model.Value, error) {
	if !strings.Contains(src, "{") {
		return model.String(src), nil
	}
	t, err := e.template(src, envVars)
	if err != nil {
		return model.Value{}, err
	}
	return e.Execute(ctx, sc, t)
}

// Execute evaluates a parsed template.
func (e *Evaluator) Execute(ctx context.Context, sc Scope, t *Template) (model.Value, error) {
	if t.IsLiteral() {
		return model.String(t.src), nil
	}
	if p, ok := t.single(); ok {
		return e.evalPart(ctx, sc, p)
	}
	var b strings.Builder
	for _, p := range t.parts {
		if p.kind == partText {
			b.WriteString(p.text)
			continue
		}
		v, err := e.evalPart(ctx, sc, p)
		if err != nil {
			return model.Value{}, err
		}
		b.WriteString(v.Text())
	}
	return model.String(b.String()), nil
}

// Eval evaluates a condition or bare expression. Text containing ${{ }} is
// treated as a template; anything else is parsed as a single expression.
func (e *Evaluator) Eval(ctx context.Context, sc Scope, src string) (model.Value, error) {
	if strings.Contains(src, openExpr) || strings.Contains(src, openSecret) {
		return e.Render(ctx, sc, src)
	}
	key := cacheKey{"\x00" + src, false}
	if t, ok := e.cache.Load(key); ok {
		return e.Execute(ctx, sc, t.(*Template))
	}
	node, err := ParseExpr(src, 0)
	if err != nil {
		return model.Value{}, err
	}
	t := &Template{src: src, parts: []part{{kind: partExpr, node: node}}}
	e.cache.Store(key, t)
	return e.Execute(ctx, sc, t)
}

// EvalDocument evaluates every string leaf of doc depth-first. Mapping keys
// are never evaluated and non-string leaves pass through unchanged. doc is
// not modified.
func (e *Evaluator) EvalDocument(ctx context.Context, sc Scope, doc model.Value) (model.Value, error) {
	return e.evalDoc(ctx, sc, doc, false, "")
}

// EvalFieldDocument is EvalDocument with ${VAR} references enabled.
func (e *Evaluator) EvalFieldDocument(ctx context.Context, sc Scope, doc model.Value) (model.Value, error) {
	return e.evalDoc(ctx, sc, doc, true, "")
}

func (e *Evaluator) evalDoc(ctx context.Context, sc Scope, doc model.Value, envVars bool, at string) (model.Value, error) {
	switch doc.Kind() {
	case model.KindString:
		v, err := e.render(ctx, sc, doc.Str(), envVars)
		if err != nil && at != "" {
			return model.Value{}, fmt.Errorf("%s: %w", at, err)
		}
		return v, err
	case model.KindSeq:
		items := make([]model.Value, len(doc.Items()))
		for i, item := range doc.Items() {
			v, err := e.evalDoc(ctx, sc, item, envVars, at+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return model.Value{}, err
			}
			items[i] = v
		}
		return model.Seq(items...), nil
	case model.KindMap:
		out := model.NewMap()
		var err error
		doc.Map().Range(func(k string, item model.Value) bool {
			key := k
			if at != "" {
				key = at + "." + k
			}
			var v model.Value
			v, err = e.evalDoc(ctx, sc, item, envVars, key)
			if err != nil {
				return false
			}
			out.Set(k, v)
			return true
		})
		if err != nil {
			return model.Value{}, err
		}
		return model.MapValue(out), nil
	}
	return doc, nil
}

func (e *Evaluator) evalPart(ctx context.Context, sc Scope, p part) (model.Value, error) {
	if err := ctx.Err(); err != nil {
		return model.Value{}, err
	}
	switch p.kind {
	case partSecret:
		v, err := sc.Secret(ctx, p.text)
		if err != nil {
			return model.Value{}, asResolution("secrets."+p.text, err)
		}
		return model.String(v), nil
	case partEnv:
		v, ok := sc.Env(p.text)
		if !ok {
			return model.Value{}, &ResolutionError{Path: "env." + p.text, Err: model.ErrNotFound}
		}
		return model.String(v), nil
	}
	return e.eval(ctx, sc, p.node)
}

func (e *Evaluator) eval(ctx context.Context, sc Scope, n Node) (model.Value, error) {
	switch n := n.(type) {
	case *Literal:
		return n.Value, nil
	case *Call:
		recv, err := e.eval(ctx, sc, n.Recv)
		if err != nil {
			return model.Value{}, err
		}
		spec, ok := builtins[n.Name]
		if !ok {
			return model.Value{}, &EvalError{Method: n.Name, Msg: "unknown method"}
		}
		if len(n.Args) < spec.minArgs || len(n.Args) > spec.maxArgs {
			return model.Value{}, &EvalError{Method: n.Name, Msg: fmt.Sprintf("takes %s, got %d", arity(spec), len(n.Args))}
		}
		args := make([]model.Value, len(n.Args))
		for i, a := range n.Args {
			if args[i], err = e.eval(ctx, sc, a); err != nil {
				return model.Value{}, err
			}
		}
		return spec.fn(recv, args)
	}

	base, segs, err := e.flatten(ctx, sc, n)
	if err != nil {
		return model.Value{}, err
	}
	if id, ok := base.(*Ident); ok {
		path := append(model.Path{{Key: id.Name}}, segs...)
		v, err := sc.LookupPath(ctx, path)
		if err != nil {
			return model.Value{}, asResolution(path.String(), err)
		}
		return v, nil
	}
	v, err := e.eval(ctx, sc, base)
	if err != nil {
		return model.Value{}, err
	}
	got, err := model.Lookup(v, segs)
	if err != nil {
		return model.Value{}, &ResolutionError{Path: n.String(), Err: model.ErrNotFound}
	}
	return got, nil
}

// flatten peels attribute and index accesses off n down to the innermost
// non-path node, evaluating index keys on the way.
func (e *Evaluator) flatten(ctx context.Context, sc Scope, n Node) (Node, model.Path, error) {
	switch n := n.(type) {
	case *Attr:
		base, segs, err := e.flatten(ctx, sc, n.X)
		if err != nil {
			return nil, nil, err
		}
		return base, append(segs, model.Segment{Key: n.Name}), nil
	case *Index:
		base, segs, err := e.flatten(ctx, sc, n.X)
		if err != nil {
			return nil, nil, err
		}
		key, err := e.eval(ctx, sc, n.Key)
		if err != nil {
			return nil, nil, err
		}
		switch key.Kind() {
		case model.KindInt:
			return base, append(segs, model.Segment{Index: int(key.Int()), IsIndex: true}), nil
		case model.KindString:
			return base, append(segs, model.Segment{Key: key.Str()}), nil
		}
		return nil, nil, &EvalError{Method: "[]", Msg: "index must be an int or string, got " + key.Kind().String()}
	}
	return n, nil, nil
}

func asResolution(path string, err error) error {
	if !errors.Is(err, model.ErrNotFound) {
		if errkind.Of(err) == errkind.Unknown {
			return &InterpolationError{Field: path, Err: err}
		}
		return err
	}
	if root, _, _ := strings.Cut(path, "."); root == "param" {
		return &ResolutionError{Path: path, Err: fmt.Errorf("%w (unknown namespace %q, did you mean \"params\"?)", model.ErrNotFound, root)}
	}
	return &ResolutionError{Path: path, Err: model.ErrNotFound}
}

func arity(s methodSpec) string {
	if s.minArgs == s.maxArgs {
		if s.minArgs == 1 {
			return "1 argument"
		}
		return strconv.Itoa(s.minArgs) + " arguments"
	}
	return strconv.Itoa(s.minArgs) + " to " + strconv.Itoa(s.maxArgs) + " arguments"
}
