package conn

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
)

func newEndpoint(typ string, spec *Spec) *Endpoint {
	extras := spec.Extras
	if extras == nil {
		extras = model.NewMap()
	}
	return &Endpoint{
		Name:     spec.Name,
		Type:     typ,
		Scheme:   spec.Scheme,
		Host:     spec.Host,
		Port:     spec.Port,
		User:     spec.User,
		Path:     spec.Path,
		Absolute: spec.Absolute,
		Database: spec.Database,
		Extras:   extras,
		creds:    Credentials{Password: spec.Password},
	}
}

func checkScheme(d Driver, spec *Spec, fallback string) error {
	if spec.Scheme == "" {
		spec.Scheme = fallback
		return nil
	}
	for _, s := range d.Schemes() {
		if s == spec.Scheme {
			return nil
		}
	}
	return &MalformedURLError{Name: spec.Name, Msg: fmt.Sprintf("scheme %q is not one of %s", spec.Scheme, strings.Join(d.Schemes(), ", "))}
}

func requireHost(spec *Spec) error {
	if spec.Host == "" {
		return &errkind.ConfigError{Document: spec.Name, Field: "host", Msg: "host is required"}
	}
	return nil
}

func pingAddr(ctx context.Context, ep *Endpoint) error {
	c, err := Dial(ctx, ep.Tunnel, ep.Addr())
	if err != nil {
		return err
	}
	return c.Close()
}

// fileSystemDriver serves local paths.
type fileSystemDriver struct{}

func (fileSystemDriver) Schemes() []string { return []string{"local", "file"} }

func (d fileSystemDriver) Build(spec *Spec) (*Endpoint, error) {
	if err := checkScheme(d, spec, "local"); err != nil {
		return nil, err
	}
	if spec.Host != "" {
		return nil, &MalformedURLError{Name: spec.Name, Msg: "local paths take no host; use scheme:///relative or scheme:////absolute"}
	}
	return newEndpoint("FlSys", spec), nil
}

func (fileSystemDriver) Ping(_ context.Context, ep *Endpoint) error {
	_, err := os.Stat(ep.Location())
	return err
}

// Glob walks the endpoint location and returns the paths relative to it
// whose base name or relative path matches pattern.
func (fileSystemDriver) Glob(ctx context.Context, ep *Endpoint, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	root := ep.Location()
	var out []string
	err := filepath.WalkDir(root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if ok, _ := filepath.Match(pattern, rel); ok {
			out = append(out, rel)
		} else if ok, _ := filepath.Match(pattern, e.Name()); ok {
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}

// sftpDriver describes an SFTP server reached over SSH.
type sftpDriver struct{}

func (sftpDriver) Schemes() []string { return []string{"sftp"} }

func (d sftpDriver) Build(spec *Spec) (*Endpoint, error) {
	if err := checkScheme(d, spec, "sftp"); err != nil {
		return nil, err
	}
	if err := requireHost(spec); err != nil {
		return nil, err
	}
	if spec.Port == 0 {
		spec.Port = 22
	}
	ep := newEndpoint("SFTP", spec)
	moveKeyCredentials(ep)
	return ep, nil
}

func (sftpDriver) Ping(ctx context.Context, ep *Endpoint) error {
	c, err := dialSSH(ctx, ep)
	if err != nil {
		return err
	}
	return c.Close()
}

// sshDriver is the internal driver behind ssh_tunnel blocks.
type sshDriver struct{}

func (sshDriver) Schemes() []string { return []string{"ssh"} }

func (d sshDriver) Build(spec *Spec) (*Endpoint, error) {
	if err := checkScheme(d, spec, "ssh"); err != nil {
		return nil, err
	}
	if err := requireHost(spec); err != nil {
		return nil, err
	}
	if spec.Port == 0 {
		spec.Port = 22
	}
	ep := newEndpoint("SSH", spec)
	moveKeyCredentials(ep)
	return ep, nil
}

func (sshDriver) Ping(ctx context.Context, ep *Endpoint) error {
	c, err := dialSSH(ctx, ep)
	if err != nil {
		return err
	}
	return c.Close()
}

// moveKeyCredentials takes private key settings out of extras so they are
// never shown as plain attributes.
func moveKeyCredentials(ep *Endpoint) {
	extras := ep.Extras.Clone()
	if v, ok := extras.Get("private_key"); ok {
		ep.creds.PrivateKey = v.Text()
		extras.Delete("private_key")
	}
	if v, ok := extras.Get("private_key_pwd"); ok {
		ep.creds.PrivateKeyPwd = v.Text()
		extras.Delete("private_key_pwd")
	}
	ep.Extras = extras
}

// sqliteDriver serves SQLite database files. An empty path or ":memory:"
// selects an in-memory database.
type sqliteDriver struct{}

func (sqliteDriver) Schemes() []string { return []string{"sqlite", "sqlite3"} }

func (d sqliteDriver) Build(spec *Spec) (*Endpoint, error) {
	if err := checkScheme(d, spec, "sqlite"); err != nil {
		return nil, err
	}
	if spec.Path == "" && spec.Database != "" {
		spec.Path, spec.Absolute = SplitPath(spec.Database)
	}
	if spec.Path == "" || spec.Path == "memory" {
		spec.Path = ":memory:"
	}
	ep := newEndpoint("SQLite", spec)
	if ep.Path == ":memory:" {
		ep.Absolute = true
	}
	if ep.Database == "" {
		ep.Database = filepath.Base(ep.Path)
	}
	return ep, nil
}

func (sqliteDriver) Ping(ctx context.Context, ep *Endpoint) error {
	db, err := sql.Open("sqlite3", SQLiteDSN(ep))
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

// SQLiteDSN returns the go-sqlite3 data source name for an endpoint.
// Extras become query parameters such as _busy_timeout.
func SQLiteDSN(ep *Endpoint) string {
	dsn := ep.Location()
	if ep.Extras.Len() == 0 {
		return dsn
	}
	var q []string
	ep.Extras.Range(func(k string, v model.Value) bool {
		if strings.HasPrefix(k, "_") || k == "mode" || k == "cache" {
			q = append(q, k+"="+v.Text())
		}
		return true
	})
	if len(q) == 0 {
		return dsn
	}
	return "file:" + dsn + "?" + strings.Join(q, "&")
}

var dbDefaultPorts = map[string]int{
	"postgres":   5432,
	"postgresql": 5432,
	"mysql":      3306,
	"mssql":      1433,
	"sqlserver":  1433,
}

// dbDriver covers network relational databases. The database name comes
// from the database field or, failing that, the path.
type dbDriver struct{}

func (dbDriver) Schemes() []string {
	return []string{"postgres", "postgresql", "mysql", "mssql", "sqlserver"}
}

func (d dbDriver) Build(spec *Spec) (*Endpoint, error) {
	dialect := ""
	if v, ok := spec.Extras.Get("dialect"); ok {
		dialect = strings.ToLower(v.Text())
	}
	if err := checkScheme(d, spec, dialect); err != nil {
		return nil, err
	}
	if spec.Scheme == "" {
		return nil, &errkind.ConfigError{Document: spec.Name, Field: "dialect", Msg: "set a url scheme or extras.dialect (postgres, mysql, mssql)"}
	}
	if err := requireHost(spec); err != nil {
		return nil, err
	}
	if spec.Port == 0 {
		spec.Port = dbDefaultPorts[spec.Scheme]
	}
	if spec.Database == "" && !spec.Absolute {
		spec.Database = spec.Path
	}
	return newEndpoint("Db", spec), nil
}

func (dbDriver) Ping(ctx context.Context, ep *Endpoint) error { return pingAddr(ctx, ep) }

// s3Driver addresses a bucket (host) and key prefix (path).
type s3Driver struct{}

func (s3Driver) Schemes() []string { return []string{"s3"} }

func (d s3Driver) Build(spec *Spec) (*Endpoint, error) {
	if err := checkScheme(d, spec, "s3"); err != nil {
		return nil, err
	}
	if spec.Host == "" {
		if v, ok := spec.Extras.Get("bucket"); ok {
			spec.Host = v.Text()
		}
	}
	if spec.Host == "" {
		return nil, &errkind.ConfigError{Document: spec.Name, Field: "host", Msg: "bucket is required"}
	}
	if !spec.Extras.Has("region") {
		spec.Extras = spec.Extras.Clone()
		spec.Extras.Set("region", model.String("ap-southeast-1"))
	}
	ep := newEndpoint("S3", spec)
	if secret, ok := ep.Extras.Get("aws_secret_access_key"); ok && ep.creds.Password == "" {
		ep.creds.Password = secret.Text()
		ep.Extras = ep.Extras.Clone()
		ep.Extras.Delete("aws_secret_access_key")
	}
	return ep, nil
}

// Ping checks that the service endpoint accepts connections; it does not
// authenticate.
func (s3Driver) Ping(ctx context.Context, ep *Endpoint) error {
	addr := ""
	if v, ok := ep.Extras.Get("endpoint_url"); ok {
		addr = strings.TrimPrefix(strings.TrimPrefix(v.Text(), "https://"), "http://")
		addr = strings.TrimSuffix(addr, "/")
		if !strings.Contains(addr, ":") {
			addr += ":443"
		}
	} else {
		region, _ := ep.Extras.Get("region")
		addr = "s3." + region.Text() + ".amazonaws.com:443"
	}
	c, err := Dial(ctx, ep.Tunnel, addr)
	if err != nil {
		return err
	}
	return c.Close()
}
