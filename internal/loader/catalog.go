// Package loader reads pipeline, connection and schedule documents. Every
// configuration file maps document names to documents; a document's type
// field says which kind it is.
package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
	"go-workflow/internal/schedule"
)

// Catalog holds every document found in a source. When two files define
// the same name, the later file wins.
type Catalog struct {
	pipelines   map[string]*model.Pipeline
	connections map[string]*model.Descriptor
	schedules   map[string]*schedule.Schedule
	origin      map[string]string
	ignored     []string
}

func newCatalog() *Catalog {
	return &Catalog{
		pipelines:   make(map[string]*model.Pipeline),
		connections: make(map[string]*model.Descriptor),
		schedules:   make(map[string]*schedule.Schedule),
		origin:      make(map[string]string),
	}
}

// Load reads and decodes every document of src. Decoding errors carry the
// file name.
func Load(ctx context.Context, src Source, log logrus.FieldLogger) (*Catalog, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	files, err := src.Files(ctx)
	if err != nil {
		return nil, err
	}
	c := newCatalog()
	for _, f := range files {
		docs, err := ParseDocuments(f.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		var derr error
		docs.Range(func(name string, doc model.Value) bool {
			if prev, ok := c.origin[name]; ok {
				log.WithFields(logrus.Fields{"document": name, "file": f.Name, "previous": prev}).Warn("document redefined")
			}
			if derr = c.add(name, doc, log); derr != nil {
				derr = fmt.Errorf("%s: %w", f.Name, derr)
				return false
			}
			c.origin[name] = f.Name
			return true
		})
		if derr != nil {
			return nil, derr
		}
	}
	log.WithFields(logrus.Fields{
		"pipelines":   len(c.pipelines),
		"connections": len(c.connections),
		"schedules":   len(c.schedules),
	}).Debug("configuration loaded")
	return c, nil
}

func (c *Catalog) add(name string, doc model.Value, log logrus.FieldLogger) error {
	if doc.Kind() != model.KindMap {
		return &errkind.ConfigError{Document: name, Msg: "expected a mapping"}
	}
	typ, _ := doc.Get("type")
	switch documentKind(typ.Text()) {
	case "pipeline":
		p, err := DecodePipeline(name, doc)
		if err != nil {
			return err
		}
		c.forget(name)
		c.pipelines[name] = p
	case "connection":
		d, err := DecodeDescriptor(name, doc)
		if err != nil {
			return err
		}
		c.forget(name)
		c.connections[name] = d
	case "schedule":
		s, err := DecodeSchedule(name, doc)
		if err != nil {
			return err
		}
		c.forget(name)
		c.schedules[name] = s
	default:
		log.WithFields(logrus.Fields{"document": name, "type": typ.Text()}).Debug("skipping document of unsupported type")
		c.ignored = append(c.ignored, name)
	}
	return nil
}

// forget drops an earlier definition of name, whatever its kind.
func (c *Catalog) forget(name string) {
	delete(c.pipelines, name)
	delete(c.connections, name)
	delete(c.schedules, name)
}

// documentKind maps a type tag to pipeline, connection, schedule or "".
// Tags look like "pipeline", "schedule.Schedule" or "conn.FlSys"; a bare
// tag that is not a pipeline or schedule is treated as a connection type so that unknown driver
// names fail at resolution with a precise error.
func documentKind(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "connection"
	}
	head, _, dotted := strings.Cut(tag, ".")
	switch {
	case strings.EqualFold(head, "pipeline"):
		return "pipeline"
	case strings.EqualFold(head, "schedule"):
		return "schedule"
	case !dotted, strings.EqualFold(head, "conn"):
		return "connection"
	}
	return ""
}

// Pipeline returns the named pipeline.
func (c *Catalog) Pipeline(name string) (*model.Pipeline, error) {
	p, ok := c.pipelines[name]
	if !ok {
		return nil, &errkind.ConfigError{Document: name, Msg: "pipeline not found in configuration"}
	}
	return p, nil
}

// Connection returns the named descriptor.
func (c *Catalog) Connection(name string) (*model.Descriptor, bool) {
	d, ok := c.connections[name]
	return d, ok
}

// Pipelines lists pipeline names in sorted order.
func (c *Catalog) Pipelines() []string { return sortedKeys(c.pipelines) }

// Connections lists connection names in sorted order.
func (c *Catalog) Connections() []string { return sortedKeys(c.connections) }

// Descriptors returns every descriptor, sorted by name.
func (c *Catalog) Descriptors() []*model.Descriptor {
	out := make([]*model.Descriptor, 0, len(c.connections))
	for _, n := range c.Connections() {
		out = append(out, c.connections[n])
	}
	return out
}

// Schedule returns the named schedule.
func (c *Catalog) Schedule(name string) (*schedule.Schedule, error) {
	s, ok := c.schedules[name]
	if !ok {
		return nil, &errkind.ConfigError{Document: name, Msg: "schedule not found in configuration"}
	}
	return s, nil
}

// Schedules lists schedule names in sorted order.
func (c *Catalog) Schedules() []string { return sortedKeys(c.schedules) }

// Ignored lists documents of a type the loader does not handle.
func (c *Catalog) Ignored() []string { return append([]string(nil), c.ignored...) }

// Origin names the file a document came from.
func (c *Catalog) Origin(name string) string { return c.origin[name] }

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
