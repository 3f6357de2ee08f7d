package conn

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Driver builds endpoints for one connection type. Adding a driver never
// touches the Resolver.
type Driver interface {
	// Schemes lists the url schemes the driver accepts.
	Schemes() []string
	// Build validates an interpolated spec and turns it into an endpoint.
	Build(spec *Spec) (*Endpoint, error)
}

// Pinger is implemented by drivers that can check reachability.
type Pinger interface {
	Ping(ctx context.Context, ep *Endpoint) error
}

// Globber is implemented by drivers that can list objects under an
// endpoint.
type Globber interface {
	Glob(ctx context.Context, ep *Endpoint, pattern string) ([]string, error)
}

// Registry maps type tags to drivers. Tags are matched case-insensitively
// and may carry a "conn." prefix, as in "conn.FlSys".
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	names   map[string]string
}

func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver), names: make(map[string]string)}
}

// DefaultRegistry returns a registry with every built-in driver.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("FlSys", fileSystemDriver{})
	r.Register("SFTP", sftpDriver{})
	r.Register("SQLite", sqliteDriver{})
	r.Register("Db", dbDriver{})
	r.Register("S3", s3Driver{})
	r.Register("SSH", sshDriver{})
	return r
}

func normalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.LastIndexByte(tag, '.'); i >= 0 {
		tag = tag[i+1:]
	}
	return strings.ToLower(tag)
}

// Register adds or replaces the driver for tag.
func (r *Registry) Register(tag string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeTag(tag)
	r.drivers[key] = d
	r.names[key] = tag
}

// Lookup returns the driver for tag and its canonical tag name.
func (r *Registry) Lookup(tag string) (Driver, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := normalizeTag(tag)
	d, ok := r.drivers[key]
	return d, r.names[key], ok
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
