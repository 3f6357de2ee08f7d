// Package scope implements the layered name environment that expressions
// are evaluated against: process environment, secrets, pipeline params and
// per-instantiation bindings such as matrix values and stage outputs.
package scope

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go-workflow/internal/model"
)

// Reserved namespace roots.
const (
	NSEnv     = "env"
	NSSecrets = "secrets"
	NSConn    = "conn"
	NSParams  = "params"
	NSMatrix  = "matrix"
	NSStages  = "stages"
)

// EnvSource looks up process environment variables.
type EnvSource interface {
	LookupEnv(name string) (string, bool)
}

// EnvFunc adapts a function to EnvSource.
type EnvFunc func(name string) (string, bool)

func (f EnvFunc) LookupEnv(name string) (string, bool) { return f(name) }

// OSEnv reads the real process environment.
var OSEnv EnvSource = EnvFunc(os.LookupEnv)

// MapEnv serves a fixed environment, mostly for tests.
type MapEnv map[string]string

func (m MapEnv) LookupEnv(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// ConnSource resolves a named connection against the store it was reached
// from. The returned value is normally an opaque endpoint handle.
type ConnSource interface {
	LookupConn(ctx context.Context, name string, s *Store) (model.Value, error)
}

// Store is one layer of the environment. A child created by WithScope
// shadows its parent per namespace root and never writes through to it.
type Store struct {
	parent *Store

	mu       sync.RWMutex
	bindings *model.Map
	frozen   bool

	env     EnvSource
	secrets SecretSource
	conns   ConnSource
	redact  func(string)
}

// Option configures a root Store.
type Option func(*Store)

func WithEnv(env EnvSource) Option {
	return func(s *Store) { s.env = env }
}

func WithSecrets(src SecretSource) Option {
	return func(s *Store) { s.secrets = src }
}

func WithConns(src ConnSource) Option {
	return func(s *Store) { s.conns = src }
}

// WithRedactor registers a callback that receives every secret value the
// store hands out, so loggers can mask it.
func WithRedactor(fn func(secret string)) Option {
	return func(s *Store) { s.redact = fn }
}

// WithParams binds the params namespace of the root store.
func WithParams(params *model.Map) Option {
	return func(s *Store) {
		if params == nil {
			params = model.NewMap()
		}
		s.bindings.Set(NSParams, model.MapValue(params))
	}
}

// New creates a root store. Without options it reads the OS environment and
// has no secrets.
func New(opts ...Option) *Store {
	s := &Store{bindings: model.NewMap(), env: OSEnv}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithScope returns a child store in which every key of bindings shadows the
// parent namespace of the same name.
func (s *Store) WithScope(bindings *model.Map) *Store {
	child := &Store{
		parent:   s,
		bindings: model.NewMap(),
		env:      s.env,
		secrets:  s.secrets,
		conns:    s.conns,
		redact:   s.redact,
	}
	bindings.Range(func(k string, v model.Value) bool {
		child.bindings.Set(k, v)
		return true
	})
	return child
}

// Freeze makes the layer read-only. The executor freezes the root scope
// before any instantiation starts.
func (s *Store) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

// Set binds a namespace root in this layer only.
func (s *Store) Set(ns string, v model.Value) error {
	switch ns {
	case NSEnv, NSSecrets, NSConn:
		return fmt.Errorf("namespace %q is reserved", ns)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return fmt.Errorf("scope is read-only, cannot bind %q", ns)
	}
	s.bindings.Set(ns, v)
	return nil
}

// Namespace returns the innermost binding of a namespace root.
func (s *Store) Namespace(ns string) (model.Value, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.bindings.Get(ns)
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return model.Value{}, false
}

// Snapshot flattens the visible bindings into one mapping, inner layers
// first. Env, secrets and connections are not included.
func (s *Store) Snapshot() *model.Map {
	var chain []*Store
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	out := model.NewMap()
	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].mu.RLock()
		chain[i].bindings.Range(func(k string, v model.Value) bool {
			out.Set(k, v)
			return true
		})
		chain[i].mu.RUnlock()
	}
	return out
}

// Env looks up an environment variable.
func (s *Store) Env(name string) (string, bool) {
	if s.env == nil {
		return "", false
	}
	return s.env.LookupEnv(name)
}

// Secret resolves a secret lazily. The value is never cached by the store.
func (s *Store) Secret(ctx context.Context, name string) (string, error) {
	if s.secrets == nil {
		return "", fmt.Errorf("secrets.%s: %w", name, model.ErrNotFound)
	}
	v, ok, err := s.secrets.Secret(ctx, name)
	if err != nil {
		return "", fmt.Errorf("secrets.%s: %w", name, err)
	}
	if !ok {
		return "", fmt.Errorf("secrets.%s: %w", name, model.ErrNotFound)
	}
	if s.redact != nil && v != "" {
		s.redact(v)
	}
	return v, nil
}

// Lookup resolves a dotted/bracketed path such as params.source.schema.
func (s *Store) Lookup(ctx context.Context, path string) (model.Value, error) {
	p, err := model.ParsePath(path)
	if err != nil {
		return model.Value{}, err
	}
	return s.LookupPath(ctx, p)
}

// LookupPath resolves an already parsed path. Unresolvable paths report an
// error wrapping model.ErrNotFound.
func (s *Store) LookupPath(ctx context.Context, p model.Path) (model.Value, error) {
	root := p.Root()
	if root == "" {
		return model.Value{}, fmt.Errorf("%s: %w", p, model.ErrNotFound)
	}
	switch root {
	case NSEnv:
		if len(p) != 2 || p[1].IsIndex {
			return model.Value{}, fmt.Errorf("%s: %w", p, model.ErrNotFound)
		}
		v, ok := s.Env(p[1].Key)
		if !ok {
			return model.Value{}, fmt.Errorf("%s: %w", p, model.ErrNotFound)
		}
		return model.String(v), nil
	case NSSecrets:
		if len(p) != 2 || p[1].IsIndex {
			return model.Value{}, fmt.Errorf("%s: %w", p, model.ErrNotFound)
		}
		v, err := s.Secret(ctx, p[1].Key)
		if err != nil {
			return model.Value{}, err
		}
		return model.String(v), nil
	case NSConn:
		if len(p) < 2 || p[1].IsIndex || s.conns == nil {
			return model.Value{}, fmt.Errorf("%s: %w", p, model.ErrNotFound)
		}
		h, err := s.conns.LookupConn(ctx, p[1].Key, s)
		if err != nil {
			return model.Value{}, err
		}
		return lookupRest(h, p, 2)
	}
	v, ok := s.Namespace(root)
	if !ok {
		return model.Value{}, fmt.Errorf("%s: %w", root, model.ErrNotFound)
	}
	return lookupRest(v, p, 1)
}

func lookupRest(v model.Value, p model.Path, from int) (model.Value, error) {
	if from >= len(p) {
		return v, nil
	}
	got, err := model.Lookup(v, p[from:])
	if err != nil {
		// Report the full path rather than the tail.
		return model.Value{}, fmt.Errorf("%s: %w", p, model.ErrNotFound)
	}
	return got, nil
}
