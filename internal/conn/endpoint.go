package conn

import (
	"net"
	"net/url"
	"path/filepath"
	"strconv"

	"go-workflow/internal/model"
)

// Credentials holds secrets of an endpoint. They are reachable only through
// Endpoint.Credentials and never through attributes, String or JSON.
type Credentials struct {
	Password      string
	PrivateKey    string
	PrivateKeyPwd string
}

// Endpoint is a resolved, driver-ready connection handle. Endpoints are
// immutable once returned by the Resolver.
type Endpoint struct {
	Name     string
	Type     string
	Scheme   string
	Host     string
	Port     int
	User     string
	Path     string
	Absolute bool
	Root     string
	Database string
	Extras   *model.Map
	Tunnel   *Endpoint

	creds Credentials
}

// Credentials returns the credential bundle for drivers.
func (e *Endpoint) Credentials() Credentials { return e.creds }

// Location is the usable path: Path itself when absolute, otherwise Path
// joined to Root.
func (e *Endpoint) Location() string {
	if e.Absolute || e.Root == "" {
		return e.Path
	}
	if e.Path == "" {
		return e.Root
	}
	return filepath.Join(e.Root, e.Path)
}

// Addr is host:port, or "" when there is no host.
func (e *Endpoint) Addr() string {
	if e.Host == "" {
		return ""
	}
	if e.Port == 0 {
		return e.Host
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String renders the endpoint as a url with the password masked.
func (e *Endpoint) String() string {
	if e.Host == "" {
		// keep the empty authority so the slash count survives:
		// absolute paths already start with '/', giving scheme:////path
		return e.Scheme + ":///" + e.Path
	}
	u := url.URL{Scheme: e.Scheme, Host: e.Addr()}
	if e.User != "" {
		if e.creds.Password != "" {
			u.User = url.UserPassword(e.User, "xxxxx")
		} else {
			u.User = url.User(e.User)
		}
	}
	if e.Path != "" {
		u.Path = "/" + e.Path
	}
	return u.String()
}

// Attr exposes read-only attributes to expressions (conn.<name>.host).
func (e *Endpoint) Attr(name string) (model.Value, bool) {
	switch name {
	case "name":
		return model.String(e.Name), true
	case "type":
		return model.String(e.Type), true
	case "scheme":
		return model.String(e.Scheme), true
	case "host":
		return model.String(e.Host), true
	case "port":
		return model.Int(int64(e.Port)), true
	case "user":
		return model.String(e.User), true
	case "path":
		return model.String(e.Path), true
	case "absolute":
		return model.Bool(e.Absolute), true
	case "location":
		return model.String(e.Location()), true
	case "database":
		return model.String(e.Database), true
	case "url":
		return model.String(e.String()), true
	case "extras":
		if e.Extras == nil {
			return model.MapValue(model.NewMap()), true
		}
		return model.MapValue(e.Extras), true
	case "tunnel":
		if e.Tunnel == nil {
			return model.Null(), true
		}
		return model.Handle(e.Tunnel), true
	}
	return model.Value{}, false
}

// MarshalJSON encodes the public view of the endpoint.
func (e *Endpoint) MarshalJSON() ([]byte, error) {
	m := model.NewMap()
	for _, k := range []string{"name", "type", "scheme", "host", "port", "user", "path", "absolute", "location", "database", "extras"} {
		v, _ := e.Attr(k)
		m.Set(k, v)
	}
	if e.Tunnel != nil {
		m.Set("tunnel", model.String(e.Tunnel.String()))
	}
	return m.MarshalJSON()
}

// Equal compares two endpoints field by field, credentials included.
func (e *Endpoint) Equal(o *Endpoint) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.Name != o.Name || e.Type != o.Type || e.Scheme != o.Scheme ||
		e.Host != o.Host || e.Port != o.Port || e.User != o.User ||
		e.Path != o.Path || e.Absolute != o.Absolute || e.Root != o.Root ||
		e.Database != o.Database || e.creds != o.creds {
		return false
	}
	if !e.Extras.Equal(o.Extras) {
		return false
	}
	return e.Tunnel.Equal(o.Tunnel)
}
