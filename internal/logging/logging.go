// Package logging builds the process logger and the hook that keeps
// resolved secrets out of log output.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const mask = "*****"

// New returns a logger writing to w (stderr when nil) at the given level.
// format is "text" or "json".
func New(level, format string, w io.Writer) (*logrus.Logger, error) {
	l := logrus.New()
	if w == nil {
		w = os.Stderr
	}
	l.SetOutput(w)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return l, nil
}

// Redactor is a logrus hook that replaces every registered secret in the
// message and string fields of each entry.
type Redactor struct {
	mu      sync.RWMutex
	secrets map[string]struct{}
	ordered []string // longest first so overlapping secrets mask fully
}

func NewRedactor() *Redactor {
	return &Redactor{secrets: make(map[string]struct{})}
}

// Attach registers the hook on l and returns r.
func (r *Redactor) Attach(l *logrus.Logger) *Redactor {
	l.AddHook(r)
	return r
}

// Add registers a secret value. Values shorter than four characters are
// ignored; masking them would mangle ordinary text.
func (r *Redactor) Add(secret string) {
	if len(secret) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.secrets[secret]; ok {
		return
	}
	r.secrets[secret] = struct{}{}
	r.ordered = append(r.ordered, secret)
	sort.Slice(r.ordered, func(i, j int) bool { return len(r.ordered[i]) > len(r.ordered[j]) })
}

// Redact masks registered secrets in s.
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, secret := range r.ordered {
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, mask)
		}
	}
	return s
}

func (r *Redactor) Levels() []logrus.Level { return logrus.AllLevels }

func (r *Redactor) Fire(e *logrus.Entry) error {
	e.Message = r.Redact(e.Message)
	for k, v := range e.Data {
		switch val := v.(type) {
		case string:
			e.Data[k] = r.Redact(val)
		case error:
			if red := r.Redact(val.Error()); red != val.Error() {
				e.Data[k] = red
			}
		case fmt.Stringer:
			if red := r.Redact(val.String()); red != val.String() {
				e.Data[k] = red
			}
		}
	}
	return nil
}
