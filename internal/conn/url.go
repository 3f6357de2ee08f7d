package conn

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go-workflow/internal/model"
)

// Spec is the interpolated, driver-independent form of a descriptor that
// drivers build endpoints from.
type Spec struct {
	Name     string
	Type     string
	Scheme   string
	Host     string
	Port     int
	User     string
	Password string
	Path     string
	Absolute bool
	Database string
	Extras   *model.Map
	FromURL  bool
}

// SplitPath applies the slash rule to a path that followed a scheme or an
// authority: one leading slash is a separator and is dropped, so "/rel"
// is relative and "//abs" is the OS-absolute "/abs".
func SplitPath(p string) (path string, absolute bool) {
	p = strings.TrimPrefix(p, "/")
	if strings.HasPrefix(p, "/") {
		return "/" + strings.TrimLeft(p, "/"), true
	}
	return p, false
}

// parseURL fills spec from a connection url. Credentials and host/port in
// authority position are taken verbatim; the query string becomes extras.
func parseURL(name, raw string) (*Spec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &MalformedURLError{Name: name, Msg: "empty url"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		// url.Error quotes the input, which may hold a password.
		if ue, ok := err.(*url.Error); ok {
			err = ue.Err
		}
		return nil, &MalformedURLError{Name: name, Msg: "cannot parse", Err: err}
	}
	if u.Scheme == "" {
		return nil, &MalformedURLError{Name: name, Msg: "missing scheme"}
	}
	if u.Opaque != "" {
		return nil, &MalformedURLError{Name: name, Msg: "expected scheme:// followed by an authority or path"}
	}

	spec := &Spec{Name: name, Scheme: strings.ToLower(u.Scheme), Host: u.Hostname(), FromURL: true}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return nil, &MalformedURLError{Name: name, Msg: "bad port " + strconv.Quote(p)}
		}
		spec.Port = port
	}
	if u.User != nil {
		spec.User = u.User.Username()
		spec.Password, _ = u.User.Password()
	}
	spec.Path, spec.Absolute = SplitPath(u.Path)

	extras := model.NewMap()
	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := q[k]
		if len(vals) == 1 {
			extras.Set(k, model.String(vals[0]))
			continue
		}
		items := make([]model.Value, len(vals))
		for i, v := range vals {
			items[i] = model.String(v)
		}
		extras.Set(k, model.Seq(items...))
	}
	spec.Extras = extras
	return spec, nil
}
