package loader

import (
	"fmt"
	"strings"
	"time"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
	"go-workflow/internal/schedule"
)

var descriptorKeys = map[string]bool{
	"name": true, "type": true, "url": true, "host": true, "port": true,
	"user": true, "pwd": true, "password": true, "endpoint": true,
	"database": true, "extras": true, "ssh_tunnel": true,
}

// DecodeDescriptor builds a connection descriptor. Keys the descriptor does
// not know are folded into extras, taking precedence over extras entries of
// the same name.
func DecodeDescriptor(name string, doc model.Value) (*model.Descriptor, error) {
	m, err := mapping(name, "", doc)
	if err != nil {
		return nil, err
	}
	d := &model.Descriptor{Name: name}
	d.Type = text(m, "type")
	if d.Type == "" {
		return nil, &errkind.ConfigError{Document: name, Field: "type", Msg: "connection type is required"}
	}
	d.URL = field(m, "url")
	d.Host = field(m, "host")
	d.Port = field(m, "port")
	d.User = field(m, "user")
	d.Endpoint = field(m, "endpoint")
	d.Database = field(m, "database")

	pwd, password := field(m, "pwd"), field(m, "password")
	if !pwd.IsNull() && !password.IsNull() {
		return nil, &errkind.ConfigError{Document: name, Field: "pwd", Msg: "set either pwd or password, not both"}
	}
	d.Password = pwd
	if d.Password.IsNull() {
		d.Password = password
	}

	extras := model.NewMap()
	if v, ok := m.Get("extras"); ok && !v.IsNull() {
		em, err := mapping(name, "extras", v)
		if err != nil {
			return nil, err
		}
		extras = em.Clone()
	}
	m.Range(func(k string, v model.Value) bool {
		if !descriptorKeys[k] {
			extras.Set(k, v)
		}
		return true
	})
	if extras.Len() > 0 {
		d.Extras = extras
	}

	if v, ok := m.Get("ssh_tunnel"); ok && !v.IsNull() {
		tm, err := mapping(name, "ssh_tunnel", v)
		if err != nil {
			return nil, err
		}
		t := &model.TunnelDescriptor{
			Host:          field(tm, "ssh_host"),
			User:          field(tm, "ssh_user"),
			Port:          field(tm, "ssh_port"),
			PrivateKey:    field(tm, "ssh_private_key"),
			Password:      field(tm, "ssh_password"),
			PrivateKeyPwd: field(tm, "ssh_private_key_pwd"),
		}
		if t.Host.IsNull() {
			return nil, &errkind.ConfigError{Document: name, Field: "ssh_tunnel.ssh_host", Msg: "tunnel host is required"}
		}
		d.Tunnel = t
	}
	return d, nil
}

// DecodePipeline builds a pipeline. Stage ids default to stage names.
func DecodePipeline(name string, doc model.Value) (*model.Pipeline, error) {
	m, err := mapping(name, "", doc)
	if err != nil {
		return nil, err
	}
	p := &model.Pipeline{Name: name, Desc: text(m, "desc")}

	if v, ok := m.Get("params"); ok && !v.IsNull() {
		pm, err := mapping(name, "params", v)
		if err != nil {
			return nil, err
		}
		var perr error
		pm.Range(func(pname string, pv model.Value) bool {
			decl, err := decodeParam(name, pname, pv)
			if err != nil {
				perr = err
				return false
			}
			p.Params = append(p.Params, decl)
			return true
		})
		if perr != nil {
			return nil, perr
		}
	}

	jv, ok := m.Get("jobs")
	if !ok || jv.IsNull() {
		return nil, &errkind.ConfigError{Document: name, Field: "jobs", Msg: "pipeline has no jobs"}
	}
	jm, err := mapping(name, "jobs", jv)
	if err != nil {
		return nil, err
	}
	var jerr error
	jm.Range(func(jname string, v model.Value) bool {
		job, err := decodeJob(name, jname, v)
		if err != nil {
			jerr = err
			return false
		}
		p.Jobs = append(p.Jobs, job)
		return true
	})
	if jerr != nil {
		return nil, jerr
	}
	return p, nil
}

// decodeParam accepts the long form {type, default, required, desc} and the
// shorthand "name: type".
func decodeParam(doc, name string, v model.Value) (model.ParamDecl, error) {
	decl := model.ParamDecl{Name: name, Required: true}
	switch v.Kind() {
	case model.KindString:
		decl.Type = model.ParamType(strings.ToLower(v.Str()))
	case model.KindMap:
		pm := v.Map()
		decl.Type = model.ParamType(strings.ToLower(text(pm, "type")))
		decl.Desc = text(pm, "desc")
		if def, ok := pm.Get("default"); ok && !def.IsNull() {
			decl.Default = def
			decl.Required = false
		}
		if r, ok := pm.Get("required"); ok {
			if r.Kind() != model.KindBool {
				return decl, &errkind.ConfigError{Document: doc, Field: "params." + name + ".required", Msg: "expected a boolean"}
			}
			decl.Required = r.Bool()
		}
	default:
		return decl, &errkind.ConfigError{Document: doc, Field: "params." + name, Msg: "expected a type name or a mapping"}
	}
	if decl.Type == "" {
		return decl, &errkind.ConfigError{Document: doc, Field: "params." + name, Msg: "parameter type is required"}
	}
	return decl, nil
}

func decodeJob(doc, name string, v model.Value) (*model.Job, error) {
	at := "jobs." + name
	m, err := mapping(doc, at, v)
	if err != nil {
		return nil, err
	}
	job := &model.Job{Name: name}
	if sv, ok := m.Get("strategy"); ok && !sv.IsNull() {
		if job.Strategy, err = decodeStrategy(doc, at+".strategy", sv); err != nil {
			return nil, err
		}
	}
	stages, _ := m.Get("stages")
	if stages.Kind() != model.KindSeq {
		return nil, &errkind.ConfigError{Document: doc, Field: at + ".stages", Msg: "expected a list of stages"}
	}
	for i, sv := range stages.Items() {
		st, err := decodeStage(doc, fmt.Sprintf("%s.stages[%d]", at, i), sv)
		if err != nil {
			return nil, err
		}
		job.Stages = append(job.Stages, st)
	}
	return job, nil
}

func decodeStrategy(doc, at string, v model.Value) (*model.Strategy, error) {
	m, err := mapping(doc, at, v)
	if err != nil {
		return nil, err
	}
	s := &model.Strategy{}
	if mv, ok := m.Get("matrix"); ok && !mv.IsNull() {
		axes, err := mapping(doc, at+".matrix", mv)
		if err != nil {
			return nil, err
		}
		var aerr error
		axes.Range(func(axis string, values model.Value) bool {
			if values.Kind() != model.KindSeq {
				aerr = &errkind.ConfigError{Document: doc, Field: at + ".matrix." + axis, Msg: "expected a list of values"}
				return false
			}
			s.Axes = append(s.Axes, model.Axis{Name: axis, Values: values.Items()})
			return true
		})
		if aerr != nil {
			return nil, aerr
		}
	}
	if s.Exclude, err = bindingList(doc, at+".exclude", m, "exclude"); err != nil {
		return nil, err
	}
	if s.Include, err = bindingList(doc, at+".include", m, "include"); err != nil {
		return nil, err
	}
	for _, key := range []string{"max_parallel", "max-parallel"} {
		if mp, ok := m.Get(key); ok {
			if mp.Kind() != model.KindInt {
				return nil, &errkind.ConfigError{Document: doc, Field: at + "." + key, Msg: "expected an integer"}
			}
			s.MaxParallel = int(mp.Int())
		}
	}
	return s, nil
}

func bindingList(doc, at string, m *model.Map, key string) ([]*model.Map, error) {
	v, ok := m.Get(key)
	if !ok || v.IsNull() {
		return nil, nil
	}
	if v.Kind() != model.KindSeq {
		return nil, &errkind.ConfigError{Document: doc, Field: at, Msg: "expected a list of mappings"}
	}
	out := make([]*model.Map, 0, v.Len())
	for i, item := range v.Items() {
		bm, err := mapping(doc, fmt.Sprintf("%s[%d]", at, i), item)
		if err != nil {
			return nil, err
		}
		out = append(out, bm)
	}
	return out, nil
}

func decodeStage(doc, at string, v model.Value) (*model.Stage, error) {
	m, err := mapping(doc, at, v)
	if err != nil {
		return nil, err
	}
	st := &model.Stage{
		Name:    text(m, "name"),
		ID:      text(m, "id"),
		Task:    text(m, "task"),
		If:      text(m, "if"),
		Timeout: text(m, "timeout"),
	}
	if st.ID == "" {
		st.ID = st.Name
	}
	if args, ok := m.Get("args"); ok && !args.IsNull() {
		if args.Kind() != model.KindMap {
			return nil, &errkind.ConfigError{Document: doc, Field: at + ".args", Msg: "expected a mapping"}
		}
		st.Args = args
	} else {
		st.Args = model.MapValue(model.NewMap())
	}
	if rv, ok := m.Get("retry"); ok && !rv.IsNull() {
		if st.Retry, err = decodeRetry(doc, at+".retry", rv); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// decodeRetry accepts a bare attempt count or a full policy mapping.
func decodeRetry(doc, at string, v model.Value) (*model.RetryPolicy, error) {
	p := model.DefaultRetryPolicy
	if v.Kind() == model.KindInt {
		p.MaxAttempts = int(v.Int())
		return &p, nil
	}
	m, err := mapping(doc, at, v)
	if err != nil {
		return nil, err
	}
	if n, ok := m.Get("max_attempts"); ok {
		if n.Kind() != model.KindInt {
			return nil, &errkind.ConfigError{Document: doc, Field: at + ".max_attempts", Msg: "expected an integer"}
		}
		p.MaxAttempts = int(n.Int())
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"initial_delay", &p.InitialDelay},
		{"max_delay", &p.MaxDelay},
	} {
		if s := text(m, d.key); s != "" {
			dur, err := time.ParseDuration(s)
			if err != nil {
				return nil, &errkind.ConfigError{Document: doc, Field: at + "." + d.key, Msg: err.Error()}
			}
			*d.dst = dur
		}
	}
	if b, ok := m.Get("backoff_multiplier"); ok {
		if !b.IsNumber() {
			return nil, &errkind.ConfigError{Document: doc, Field: at + ".backoff_multiplier", Msg: "expected a number"}
		}
		p.BackoffMultiplier = b.Float()
	}
	if j, ok := m.Get("jitter"); ok {
		p.Jitter = j.Truthy()
	}
	return &p, nil
}

func mapping(doc, at string, v model.Value) (*model.Map, error) {
	if v.Kind() != model.KindMap {
		field := at
		if field == "" {
			field = "document"
		}
		return nil, &errkind.ConfigError{Document: doc, Field: field, Msg: "expected a mapping, got " + v.Kind().String()}
	}
	return v.Map(), nil
}

func field(m *model.Map, key string) model.Value {
	v, _ := m.Get(key)
	return v
}

func text(m *model.Map, key string) string {
	v, ok := m.Get(key)
	if !ok || v.IsNull() {
		return ""
	}
	return v.Text()
}

// DecodeSchedule builds a schedule from cron (or cronjob) and tz (or
// timezone). An interval mapping with interval, day and time keys may
// stand in for the expression.
func DecodeSchedule(name string, doc model.Value) (*schedule.Schedule, error) {
	m, err := mapping(name, "", doc)
	if err != nil {
		return nil, err
	}
	expression := text(m, "cron")
	if expression == "" {
		expression = text(m, "cronjob")
	}
	if v, ok := m.Get("interval"); ok && !v.IsNull() {
		if expression != "" {
			return nil, &errkind.ConfigError{Document: name, Field: "interval", Msg: "set either cron or interval, not both"}
		}
		im, err := mapping(name, "interval", v)
		if err != nil {
			return nil, err
		}
		if expression, err = schedule.Interval(text(im, "every"), text(im, "day"), text(im, "time")); err != nil {
			return nil, &errkind.ConfigError{Document: name, Field: "interval", Msg: err.Error()}
		}
	}
	if expression == "" {
		return nil, &errkind.ConfigError{Document: name, Field: "cron", Msg: "schedule needs a cron expression"}
	}
	tz := text(m, "tz")
	if tz == "" {
		tz = text(m, "timezone")
	}
	var extras *model.Map
	if v, ok := m.Get("extras"); ok && !v.IsNull() {
		em, err := mapping(name, "extras", v)
		if err != nil {
			return nil, err
		}
		extras = em.Clone()
	}
	s, err := schedule.New(name, expression, tz, extras)
	if err != nil {
		return nil, &errkind.ConfigError{Document: name, Field: "cron", Msg: err.Error()}
	}
	return s, nil
}
