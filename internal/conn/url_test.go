package conn

import (
	"context"
	"testing"

	"go-workflow/internal/model"
)

func TestSplitPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       string
		path     string
		absolute bool
	}{
		{"/relative/foo", "relative/foo", false},
		{"//absolute/path/to/foo", "/absolute/path/to/foo", true},
		{"relative", "relative", false},
		{"", "", false},
		{"/", "", false},
		{"///many", "/many", true},
	}
	for _, tt := range tests {
		path, abs := SplitPath(tt.in)
		if path != tt.path || abs != tt.absolute {
			t.Errorf("SplitPath(%q) = %q, %v; want %q, %v", tt.in, path, abs, tt.path, tt.absolute)
		}
	}
}

func TestParseURL_Query(t *testing.T) {
	t.Parallel()
	spec, err := parseURL("c", "s3://bucket/prefix/key?region=eu-west-1&tag=a&tag=b")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Host != "bucket" || spec.Path != "prefix/key" {
		t.Errorf("spec = %+v", spec)
	}
	if v, _ := spec.Extras.Get("region"); v.Text() != "eu-west-1" {
		t.Errorf("region = %v", v)
	}
	if v, _ := spec.Extras.Get("tag"); v.Len() != 2 {
		t.Errorf("tag = %v", v)
	}
}

func TestResolve_S3(t *testing.T) {
	t.Parallel()
	d := &model.Descriptor{
		Name:   "lake",
		Type:   "S3",
		URL:    model.String("s3://lake-bucket/raw"),
		Extras: model.MapOf("aws_access_key", "AKIA", "aws_secret_access_key", "@secrets{db_pwd}"),
	}
	ep, err := NewResolver().Resolve(context.Background(), d, testScope())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := ep.Extras.Get("region"); v.Text() != "ap-southeast-1" {
		t.Errorf("default region = %v", v)
	}
	if ep.Extras.Has("aws_secret_access_key") || ep.Credentials().Password != "pg-secret" {
		t.Errorf("secret key must move into credentials: %v", ep.Extras)
	}
	if ep.Host != "lake-bucket" || ep.Path != "raw" {
		t.Errorf("endpoint = %+v", ep)
	}
}
