// Package conn turns connection descriptors into resolved endpoints. A
// descriptor uses either a url or discrete fields; every string is
// interpolated against a scope before the driver registered for the
// descriptor's type builds the endpoint.
package conn

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/errkind"
	"go-workflow/internal/expr"
	"go-workflow/internal/model"
	"go-workflow/internal/scope"
)

type cacheKey struct {
	desc *model.Descriptor
	sc   expr.Scope
}

// Resolver resolves descriptors and caches the result per descriptor and
// scope. It is safe for concurrent use.
type Resolver struct {
	registry *Registry
	eval     *expr.Evaluator
	root     string
	log      logrus.FieldLogger

	mu      sync.RWMutex
	catalog map[string]*model.Descriptor
	cache   map[cacheKey]*Endpoint
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithRegistry(r *Registry) Option { return func(res *Resolver) { res.registry = r } }

func WithEvaluator(e *expr.Evaluator) Option { return func(res *Resolver) { res.eval = e } }

// WithRoot sets the directory that root-relative paths are joined to.
func WithRoot(root string) Option { return func(res *Resolver) { res.root = root } }

func WithLogger(l logrus.FieldLogger) Option { return func(res *Resolver) { res.log = l } }

// WithDescriptors seeds the catalog used for conn.<name> lookups.
func WithDescriptors(ds ...*model.Descriptor) Option {
	return func(res *Resolver) {
		for _, d := range ds {
			res.catalog[d.Name] = d
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		catalog: make(map[string]*model.Descriptor),
		cache:   make(map[cacheKey]*Endpoint),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = DefaultRegistry()
	}
	if r.eval == nil {
		r.eval = expr.New()
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	return r
}

// Registry returns the driver registry.
func (r *Resolver) Registry() *Registry { return r.registry }

// Add puts a descriptor into the catalog, replacing one of the same name.
func (r *Resolver) Add(d *model.Descriptor) {
	r.mu.Lock()
	r.catalog[d.Name] = d
	r.mu.Unlock()
}

// Descriptor returns the catalog entry for name.
func (r *Resolver) Descriptor(name string) (*model.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.catalog[name]
	return d, ok
}

// Names lists catalog entries in sorted order.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.catalog))
	for n := range r.catalog {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ResolveName resolves a catalog entry.
func (r *Resolver) ResolveName(ctx context.Context, name string, sc expr.Scope) (*Endpoint, error) {
	d, ok := r.Descriptor(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return r.Resolve(ctx, d, sc)
}

// LookupConn serves the conn namespace of a scope.
func (r *Resolver) LookupConn(ctx context.Context, name string, s *scope.Store) (model.Value, error) {
	if _, ok := r.Descriptor(name); !ok {
		return model.Value{}, fmt.Errorf("conn.%s: %w", name, model.ErrNotFound)
	}
	ep, err := r.ResolveName(ctx, name, s)
	if err != nil {
		return model.Value{}, err
	}
	return model.Handle(ep), nil
}

// Resolve turns d into an endpoint. Re-resolving the same descriptor with the
// same scope returns the cached endpoint.
func (r *Resolver) Resolve(ctx context.Context, d *model.Descriptor, sc expr.Scope) (*Endpoint, error) {
	key := cacheKey{d, sc}
	r.mu.RLock()
	ep, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return ep, nil
	}

	ep, err := r.resolve(ctx, d, sc)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		ep = cached
	} else {
		r.cache[key] = ep
	}
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{"connection": d.Name, "type": ep.Type}).Debugf("resolved %s", ep)
	return ep, nil
}

// Forget drops every cached endpoint resolved against sc. Executors call it
// when an instantiation scope is discarded.
func (r *Resolver) Forget(sc expr.Scope) {
	r.mu.Lock()
	for k := range r.cache {
		if k.sc == sc {
			delete(r.cache, k)
		}
	}
	r.mu.Unlock()
}

func (r *Resolver) resolve(ctx context.Context, d *model.Descriptor, sc expr.Scope) (*Endpoint, error) {
	fields := d.FieldNames()
	if d.HasURL() == (len(fields) > 0) {
		if !d.HasURL() {
			fields = nil
		}
		return nil, &AmbiguousDescriptorError{Name: d.Name, Fields: fields}
	}
	driver, tag, ok := r.registry.Lookup(d.Type)
	if !ok {
		return nil, &UnknownTypeError{Name: d.Name, Type: d.Type}
	}

	var spec *Spec
	if d.HasURL() {
		raw, err := r.text(ctx, sc, d.Name, "url", d.URL)
		if err != nil {
			return nil, err
		}
		if spec, err = parseURL(d.Name, raw); err != nil {
			return nil, err
		}
	} else {
		var err error
		if spec, err = r.fieldSpec(ctx, sc, d); err != nil {
			return nil, err
		}
	}
	spec.Type = tag

	if d.Extras.Len() > 0 {
		v, err := r.eval.EvalFieldDocument(ctx, sc, model.MapValue(d.Extras))
		if err != nil {
			return nil, &expr.InterpolationError{Field: d.Name + ".extras", Err: err}
		}
		spec.Extras = spec.Extras.Merge(v.Map())
	}

	ep, err := driver.Build(spec)
	if err != nil {
		return nil, err
	}
	if !ep.Absolute {
		ep.Root = r.root
	}

	if d.Tunnel != nil {
		td := d.Tunnel.AsDescriptor(d.Name)
		tunnel, err := r.resolve(ctx, td, sc)
		if err != nil {
			return nil, fmt.Errorf("ssh_tunnel: %w", err)
		}
		ep.Tunnel = tunnel
	}
	return ep, nil
}

func (r *Resolver) fieldSpec(ctx context.Context, sc expr.Scope, d *model.Descriptor) (*Spec, error) {
	spec := &Spec{Name: d.Name}
	var err error
	if spec.Host, err = r.text(ctx, sc, d.Name, "host", d.Host); err != nil {
		return nil, err
	}
	if spec.User, err = r.text(ctx, sc, d.Name, "user", d.User); err != nil {
		return nil, err
	}
	if spec.Password, err = r.text(ctx, sc, d.Name, "pwd", d.Password); err != nil {
		return nil, err
	}
	if spec.Database, err = r.text(ctx, sc, d.Name, "database", d.Database); err != nil {
		return nil, err
	}
	endpoint, err := r.text(ctx, sc, d.Name, "endpoint", d.Endpoint)
	if err != nil {
		return nil, err
	}
	spec.Path, spec.Absolute = SplitPath(endpoint)

	port, err := r.text(ctx, sc, d.Name, "port", d.Port)
	if err != nil {
		return nil, err
	}
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return nil, &errkind.ConfigError{Document: d.Name, Field: "port", Msg: "port must be a number between 1 and 65535"}
		}
		spec.Port = n
	}
	return spec, nil
}

// text interpolates one descriptor field and coerces it to text.
func (r *Resolver) text(ctx context.Context, sc expr.Scope, name, field string, v model.Value) (string, error) {
	switch v.Kind() {
	case model.KindNull:
		return "", nil
	case model.KindString:
		out, err := r.eval.RenderField(ctx, sc, v.Str())
		if err != nil {
			return "", &expr.InterpolationError{Field: name + "." + field, Err: err}
		}
		return out.Text(), nil
	case model.KindMap, model.KindSeq:
		return "", &errkind.ConfigError{Document: name, Field: field, Msg: "expected a scalar"}
	}
	return v.Text(), nil
}

// Ping checks that the endpoint is reachable, when its driver supports it.
func (r *Resolver) Ping(ctx context.Context, ep *Endpoint) error {
	driver, _, ok := r.registry.Lookup(ep.Type)
	if !ok {
		return &UnknownTypeError{Name: ep.Name, Type: ep.Type}
	}
	p, ok := driver.(Pinger)
	if !ok {
		return fmt.Errorf("connection %q: type %s does not support ping", ep.Name, ep.Type)
	}
	return p.Ping(ctx, ep)
}

// Glob lists objects under the endpoint that match pattern.
func (r *Resolver) Glob(ctx context.Context, ep *Endpoint, pattern string) ([]string, error) {
	driver, _, ok := r.registry.Lookup(ep.Type)
	if !ok {
		return nil, &UnknownTypeError{Name: ep.Name, Type: ep.Type}
	}
	g, ok := driver.(Globber)
	if !ok {
		return nil, fmt.Errorf("connection %q: type %s does not support glob", ep.Name, ep.Type)
	}
	return g.Glob(ctx, ep, pattern)
}
