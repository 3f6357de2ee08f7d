package conn

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
	"go-workflow/internal/scope"
)

func testScope() *scope.Store {
	return scope.New(
		scope.WithEnv(scope.MapEnv{"SFTP_HOST": "sftp.example.com", "DATA": "landing"}),
		scope.WithSecrets(scope.MapSecrets{"sftp_pwd": "hunter2", "db_pwd": "pg-secret"}),
		scope.WithParams(model.MapOf("schema", "raw")),
	)
}

func str(s string) model.Value { return model.String(s) }

func TestResolve_SlashRule(t *testing.T) {
	t.Parallel()
	r := NewResolver(WithRoot("/srv/root"))
	sc := testScope()
	ctx := context.Background()

	tests := []struct {
		url      string
		path     string
		absolute bool
		location string
	}{
		{"local:///relative/foo", "relative/foo", false, "/srv/root/relative/foo"},
		{"local:////absolute/path/to/foo", "/absolute/path/to/foo", true, "/absolute/path/to/foo"},
		{"file:///data/${DATA}", "data/landing", false, "/srv/root/data/landing"},
		{"local:///", "", false, "/srv/root"},
	}
	for _, tt := range tests {
		d := &model.Descriptor{Name: "fs", Type: "conn.FlSys", URL: str(tt.url)}
		ep, err := r.Resolve(ctx, d, sc)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.url, err)
		}
		if ep.Path != tt.path || ep.Absolute != tt.absolute || ep.Location() != tt.location {
			t.Errorf("Resolve(%q) = path %q abs %v loc %q; want %q %v %q",
				tt.url, ep.Path, ep.Absolute, ep.Location(), tt.path, tt.absolute, tt.location)
		}
		if got := ep.String(); got != strings.ReplaceAll(tt.url, "${DATA}", "landing") {
			t.Errorf("String() = %q, want round trip of %q", got, tt.url)
		}
	}
}

func TestResolve_EndpointFieldFollowsSlashRule(t *testing.T) {
	t.Parallel()
	r := NewResolver(WithRoot("/root"))
	sc := testScope()
	for endpoint, want := range map[string]string{
		"data/in":  "/root/data/in",
		"/data/in": "/root/data/in",
		"//tmp/in": "/tmp/in",
	} {
		d := &model.Descriptor{Name: "fs", Type: "FlSys", Endpoint: str(endpoint)}
		ep, err := r.Resolve(context.Background(), d, sc)
		if err != nil {
			t.Fatal(err)
		}
		if ep.Location() != want {
			t.Errorf("endpoint %q: location %q, want %q", endpoint, ep.Location(), want)
		}
	}
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()
	sc := testScope()
	d := &model.Descriptor{
		Name:   "sftp_landing",
		Type:   "SFTP",
		URL:    str("sftp://etl:@secrets{sftp_pwd}@${SFTP_HOST}:2222/${{ params.schema }}/in?timeout=30"),
		Extras: model.MapOf("mode", "${{ params.schema }}"),
	}
	r1 := NewResolver()
	a, err := r1.Resolve(context.Background(), d, sc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := r1.Resolve(context.Background(), d, sc)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second resolution should come from the cache")
	}
	// A fresh resolver re-runs the whole algorithm and must agree.
	c, err := NewResolver().Resolve(context.Background(), d, sc)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(c) {
		t.Errorf("re-resolution differs: %+v vs %+v", a, c)
	}

	if a.Host != "sftp.example.com" || a.Port != 2222 || a.User != "etl" || a.Path != "raw/in" {
		t.Errorf("unexpected endpoint %+v", a)
	}
	if a.Credentials().Password != "hunter2" {
		t.Errorf("password = %q", a.Credentials().Password)
	}
	if v, _ := a.Extras.Get("timeout"); v.Text() != "30" {
		t.Errorf("query extras missing: %v", a.Extras)
	}
	if v, _ := a.Extras.Get("mode"); v.Text() != "raw" {
		t.Errorf("extras not interpolated: %v", a.Extras)
	}
}

func TestResolve_CredentialsNeverExposed(t *testing.T) {
	t.Parallel()
	d := &model.Descriptor{Name: "sftp", Type: "SFTP", URL: str("sftp://etl:@secrets{sftp_pwd}@host/in")}
	ep, err := NewResolver().Resolve(context.Background(), d, testScope())
	if err != nil {
		t.Fatal(err)
	}
	js, _ := json.Marshal(ep)
	for _, out := range []string{ep.String(), string(js)} {
		if strings.Contains(out, "hunter2") {
			t.Errorf("credential leaked: %s", out)
		}
	}
	for _, attr := range []string{"password", "pwd", "creds"} {
		if _, ok := ep.Attr(attr); ok {
			t.Errorf("attribute %q must not exist", attr)
		}
	}
}

func TestResolve_Ambiguous(t *testing.T) {
	t.Parallel()
	r := NewResolver()
	tests := []*model.Descriptor{
		{Name: "both", Type: "SFTP", URL: str("sftp://h/p"), Host: str("h")},
		{Name: "both2", Type: "FlSys", URL: str("local:///p"), Endpoint: str("p")},
		{Name: "neither", Type: "FlSys"},
	}
	for _, d := range tests {
		_, err := r.Resolve(context.Background(), d, testScope())
		var amb *AmbiguousDescriptorError
		if !errors.As(err, &amb) {
			t.Errorf("%s: error = %v, want AmbiguousDescriptorError", d.Name, err)
			continue
		}
		if errkind.Of(err) != errkind.AmbiguousDescriptor {
			t.Errorf("%s: kind = %s", d.Name, errkind.Of(err))
		}
	}
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()
	r := NewResolver()
	tests := []struct {
		d    *model.Descriptor
		kind errkind.Kind
	}{
		{&model.Descriptor{Name: "x", Type: "conn.Kafka", URL: str("kafka://h")}, errkind.UnknownType},
		{&model.Descriptor{Name: "x", Type: "FlSys", URL: str("no-scheme/path")}, errkind.MalformedURL},
		{&model.Descriptor{Name: "x", Type: "FlSys", URL: str("local:relative")}, errkind.MalformedURL},
		{&model.Descriptor{Name: "x", Type: "FlSys", URL: str("sftp:///p")}, errkind.MalformedURL},
		{&model.Descriptor{Name: "x", Type: "SFTP", URL: str("sftp://h:99999/p")}, errkind.MalformedURL},
		{&model.Descriptor{Name: "x", Type: "SFTP", URL: str("sftp://${NOPE}/p")}, errkind.Interpolation},
		{&model.Descriptor{Name: "x", Type: "SFTP", Host: str("@secrets{missing}")}, errkind.Interpolation},
		{&model.Descriptor{Name: "x", Type: "SFTP", User: str("u")}, errkind.Configuration},
		{&model.Descriptor{Name: "x", Type: "Db", Host: str("h"), Port: str("abc")}, errkind.Configuration},
	}
	for _, tt := range tests {
		_, err := r.Resolve(context.Background(), tt.d, testScope())
		if errkind.Of(err) != tt.kind {
			t.Errorf("%s %v: kind = %s (%v), want %s", tt.d.Type, tt.d.URL, errkind.Of(err), err, tt.kind)
		}
	}
}

func TestResolve_FieldsAndTunnel(t *testing.T) {
	t.Parallel()
	d := &model.Descriptor{
		Name:     "warehouse",
		Type:     "conn.Db",
		Host:     str("10.0.0.5"),
		User:     str("loader"),
		Password: str("@secrets{db_pwd}"),
		Database: str("dwh"),
		Extras:   model.MapOf("dialect", "postgres"),
		Tunnel: &model.TunnelDescriptor{
			Host:       str("${SFTP_HOST}"),
			User:       str("jump"),
			PrivateKey: str("/keys/id_ed25519"),
		},
	}
	ep, err := NewResolver().Resolve(context.Background(), d, testScope())
	if err != nil {
		t.Fatal(err)
	}
	if ep.Scheme != "postgres" || ep.Port != 5432 || ep.Database != "dwh" || ep.Credentials().Password != "pg-secret" {
		t.Errorf("unexpected endpoint %+v", ep)
	}
	if ep.Tunnel == nil {
		t.Fatal("tunnel not attached")
	}
	if ep.Tunnel.Type != "SSH" || ep.Tunnel.Host != "sftp.example.com" || ep.Tunnel.Port != 22 {
		t.Errorf("tunnel = %+v", ep.Tunnel)
	}
	if ep.Tunnel.Credentials().PrivateKey != "/keys/id_ed25519" || ep.Tunnel.Extras.Has("private_key") {
		t.Errorf("private key must move into credentials: %+v", ep.Tunnel.Extras)
	}
	// The tunnel is a wrapper, not merged into the endpoint.
	if ep.Host != "10.0.0.5" {
		t.Errorf("host overwritten by tunnel: %s", ep.Host)
	}
}

func TestResolve_DbFromURL(t *testing.T) {
	t.Parallel()
	d := &model.Descriptor{Name: "mysql", Type: "Db", URL: str("mysql://root:pw@db:3307/sales")}
	ep, err := NewResolver().Resolve(context.Background(), d, testScope())
	if err != nil {
		t.Fatal(err)
	}
	if ep.Database != "sales" || ep.Port != 3307 || ep.Host != "db" {
		t.Errorf("endpoint = %+v", ep)
	}
	if got := ep.String(); got != "mysql://root:xxxxx@db:3307/sales" {
		t.Errorf("String() = %q", got)
	}
}

func TestLookupConn_ThroughScope(t *testing.T) {
	t.Parallel()
	r := NewResolver(WithDescriptors(&model.Descriptor{Name: "landing", Type: "FlSys", URL: str("local:////data/landing")}))
	sc := scope.New(scope.WithConns(r), scope.WithEnv(scope.MapEnv{}))
	v, err := sc.Lookup(context.Background(), "conn.landing.location")
	if err != nil || v.Text() != "/data/landing" {
		t.Fatalf("conn.landing.location = %v, %v", v, err)
	}
	if _, err := sc.Lookup(context.Background(), "conn.nope.path"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown connection: %v", err)
	}
}

func TestResolve_ConcurrentCache(t *testing.T) {
	t.Parallel()
	r := NewResolver()
	sc := testScope()
	d := &model.Descriptor{Name: "fs", Type: "FlSys", URL: str("local:///x")}
	var wg sync.WaitGroup
	eps := make([]*Endpoint, 20)
	for i := range eps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ep, err := r.Resolve(context.Background(), d, sc)
			if err != nil {
				t.Error(err)
			}
			eps[i] = ep
		}(i)
	}
	wg.Wait()
	for _, ep := range eps[1:] {
		if !ep.Equal(eps[0]) {
			t.Fatal("concurrent resolutions disagree")
		}
	}
	r.Forget(sc)
	again, _ := r.Resolve(context.Background(), d, sc)
	if !again.Equal(eps[0]) {
		t.Error("resolution after Forget differs")
	}
}

func TestPingAndGlob_FileSystem(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "b.csv", "sub/c.csv", "notes.txt"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := NewResolver(WithRoot(dir))
	ep, err := r.Resolve(context.Background(), &model.Descriptor{Name: "fs", Type: "FlSys", URL: str("local:///")}, testScope())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Ping(context.Background(), ep); err != nil {
		t.Errorf("Ping: %v", err)
	}
	got, err := r.Glob(context.Background(), ep, "*.csv")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("Glob(*.csv) = %v, want 3 files", got)
	}

	missing, _ := r.Resolve(context.Background(), &model.Descriptor{Name: "gone", Type: "FlSys", URL: str("local:///does/not/exist")}, testScope())
	if err := r.Ping(context.Background(), missing); err == nil {
		t.Error("Ping of a missing path should fail")
	}
}

func TestPing_SQLite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := NewResolver(WithRoot(dir))
	for _, url := range []string{"sqlite:///test.db", "sqlite:///"} {
		ep, err := r.Resolve(context.Background(), &model.Descriptor{Name: "lite", Type: "SQLite", URL: str(url)}, testScope())
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Ping(context.Background(), ep); err != nil {
			t.Errorf("Ping(%s): %v", url, err)
		}
	}
}

func TestRegistry_Tags(t *testing.T) {
	t.Parallel()
	reg := DefaultRegistry()
	for _, tag := range []string{"FlSys", "conn.FlSys", "flsys", "ddeutil.workflow.conn.SFTP", "SQLite", "Db", "S3", "SSH"} {
		if _, _, ok := reg.Lookup(tag); !ok {
			t.Errorf("Lookup(%q) failed", tag)
		}
	}
	if len(reg.Tags()) != 6 {
		t.Errorf("Tags() = %v", reg.Tags())
	}
}
