package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l, err := New("debug", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	l.WithField("run_id", "r1").Debug("hello")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if line["msg"] != "hello" || line["run_id"] != "r1" {
		t.Errorf("entry = %v", line)
	}

	for _, tt := range []struct{ level, format string }{{"loud", "text"}, {"info", "xml"}} {
		if _, err := New(tt.level, tt.format, nil); err == nil {
			t.Errorf("New(%q, %q) should fail", tt.level, tt.format)
		}
	}
}

func TestRedactor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l, err := New("info", "text", &buf)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRedactor().Attach(l)
	r.Add("s3cr3t-pass")
	r.Add("s3cr3t")
	r.Add("ab")

	l.WithFields(logrus.Fields{
		"dsn": "user:s3cr3t-pass@db",
		"err": errors.New("auth failed for s3cr3t"),
	}).Info("connecting with s3cr3t-pass and ab")

	out := buf.String()
	if strings.Contains(out, "s3cr3t") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "user:*****@db") || !strings.Contains(out, "and ab") {
		t.Errorf("unexpected output: %s", out)
	}
}
