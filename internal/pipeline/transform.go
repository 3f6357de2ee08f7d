package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go-workflow/internal/expr"
	"go-workflow/internal/model"
)

// BindParams converts the supplied values against the declarations, in
// declaration order. Missing values take the default; a missing required
// value is an error. Values nobody declared are logged and dropped.
// Connection-typed params are bound by name here and resolved once the root
// scope exists.
func BindParams(decls []model.ParamDecl, given *model.Map, log logrus.FieldLogger) (*model.Map, error) {
	out := model.NewMap()
	declared := make(map[string]bool, len(decls))
	for _, d := range decls {
		declared[d.Name] = true
		v, ok := given.Get(d.Name)
		if !ok || v.IsNull() {
			switch {
			case !d.Default.IsNull():
				v = d.Default
			case d.Required:
				return nil, &ParamValidationError{Param: d.Name, Type: d.Type, Msg: "required value is missing"}
			default:
				out.Set(d.Name, model.Null())
				continue
			}
		}
		cv, err := ConvertParam(d.Type, v)
		if err != nil {
			return nil, &ParamValidationError{Param: d.Name, Type: d.Type, Msg: err.Error()}
		}
		out.Set(d.Name, cv)
	}
	given.Range(func(k string, _ model.Value) bool {
		if !declared[k] && log != nil {
			log.WithField("param", k).Warn("ignoring undeclared parameter")
		}
		return true
	})
	return out, nil
}

// ConvertParam coerces v to the declared type. Text input, as it arrives
// from the command line, is parsed.
func ConvertParam(t model.ParamType, v model.Value) (model.Value, error) {
	switch t {
	case model.ParamStr, model.ParamConn:
		if v.Kind() == model.KindMap || v.Kind() == model.KindSeq || v.Kind() == model.KindHandle {
			return model.Value{}, fmt.Errorf("expected text, got %s", v.Kind())
		}
		return model.String(v.Text()), nil

	case model.ParamInt:
		switch v.Kind() {
		case model.KindInt:
			return v, nil
		case model.KindFloat:
			if f := v.Float(); f == math.Trunc(f) {
				return model.Int(int64(f)), nil
			}
		case model.KindString:
			if i, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64); err == nil {
				return model.Int(i), nil
			}
		}
		return model.Value{}, fmt.Errorf("%q is not an integer", v.Text())

	case model.ParamFloat:
		switch v.Kind() {
		case model.KindInt, model.KindFloat:
			return model.Float(v.Float()), nil
		case model.KindString:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64); err == nil {
				return model.Float(f), nil
			}
		}
		return model.Value{}, fmt.Errorf("%q is not a number", v.Text())

	case model.ParamBool:
		switch v.Kind() {
		case model.KindBool:
			return v, nil
		case model.KindString:
			if b, err := strconv.ParseBool(strings.TrimSpace(v.Str())); err == nil {
				return model.Bool(b), nil
			}
		}
		return model.Value{}, fmt.Errorf("%q is not a boolean", v.Text())

	case model.ParamDatetime, model.ParamDate:
		var ts time.Time
		switch v.Kind() {
		case model.KindTime:
			ts = v.Time()
		case model.KindString:
			parsed, ok := expr.ParseTime(v.Str())
			if !ok {
				return model.Value{}, fmt.Errorf("%q is not a date or datetime", v.Str())
			}
			ts = parsed
		default:
			return model.Value{}, fmt.Errorf("expected a datetime, got %s", v.Kind())
		}
		if t == model.ParamDate {
			y, m, d := ts.Date()
			ts = time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
		}
		return model.Time(ts), nil

	case model.ParamList:
		switch v.Kind() {
		case model.KindSeq:
			return v, nil
		case model.KindString:
			s := strings.TrimSpace(v.Str())
			if strings.HasPrefix(s, "[") {
				var out model.Value
				if err := json.Unmarshal([]byte(s), &out); err == nil && out.Kind() == model.KindSeq {
					return out, nil
				}
				return model.Value{}, fmt.Errorf("%q is not a JSON list", s)
			}
			if s == "" {
				return model.Seq(), nil
			}
			parts := strings.Split(s, ",")
			items := make([]model.Value, len(parts))
			for i, p := range parts {
				items[i] = model.String(strings.TrimSpace(p))
			}
			return model.Seq(items...), nil
		}
		return model.Value{}, fmt.Errorf("expected a list, got %s", v.Kind())

	case model.ParamMap:
		switch v.Kind() {
		case model.KindMap:
			return v, nil
		case model.KindString:
			var out model.Value
			if err := json.Unmarshal([]byte(v.Str()), &out); err == nil && out.Kind() == model.KindMap {
				return out, nil
			}
			return model.Value{}, fmt.Errorf("%q is not a JSON object", v.Str())
		}
		return model.Value{}, fmt.Errorf("expected a mapping, got %s", v.Kind())
	}
	return model.Value{}, fmt.Errorf("unknown parameter type %q", t)
}
