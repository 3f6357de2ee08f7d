package expr

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"

	"go-workflow/internal/model"
)

// Method is a built-in method callable on a value: recv.name(args...).
type Method func(recv model.Value, args []model.Value) (model.Value, error)

type methodSpec struct {
	fn      Method
	minArgs int
	maxArgs int
}

var builtins = map[string]methodSpec{
	"fmt":     {fmtMethod, 1, 1},
	"upper":   {stringMethod(strings.ToUpper), 0, 0},
	"lower":   {stringMethod(strings.ToLower), 0, 0},
	"strip":   {stripMethod, 0, 1},
	"replace": {replaceMethod, 2, 2},
	"split":   {splitMethod, 1, 1},
	"join":    {joinMethod, 1, 1},
	"len":     {lenMethod, 0, 0},
	"str":     {strMethod, 0, 0},
	"int":     {intMethod, 0, 0},
}

// dateLayouts are tried in order when a text value is used as a datetime.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseTime parses the textual datetime forms accepted for datetime params.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func argString(method string, v model.Value) (string, error) {
	if !v.IsString() {
		return "", &EvalError{Method: method, Msg: "expected a string argument, got " + v.Kind().String()}
	}
	return v.Str(), nil
}

func fmtMethod(recv model.Value, args []model.Value) (model.Value, error) {
	layout, err := argString("fmt", args[0])
	if err != nil {
		return model.Value{}, err
	}
	var t time.Time
	switch recv.Kind() {
	case model.KindTime:
		t = recv.Time()
	case model.KindString:
		parsed, ok := ParseTime(recv.Str())
		if !ok {
			return model.Value{}, &EvalError{Method: "fmt", Msg: "cannot read " + strconv.Quote(recv.Str()) + " as a datetime"}
		}
		t = parsed
	default:
		return model.Value{}, &EvalError{Method: "fmt", Msg: "receiver must be a datetime, got " + recv.Kind().String()}
	}
	out, err := strftime.Format(layout, t)
	if err != nil {
		return model.Value{}, &EvalError{Method: "fmt", Msg: err.Error()}
	}
	return model.String(out), nil
}

func stringMethod(fn func(string) string) Method {
	return func(recv model.Value, _ []model.Value) (model.Value, error) {
		return model.String(fn(recv.Text())), nil
	}
}

func stripMethod(recv model.Value, args []model.Value) (model.Value, error) {
	if len(args) == 0 {
		return model.String(strings.TrimSpace(recv.Text())), nil
	}
	cut, err := argString("strip", args[0])
	if err != nil {
		return model.Value{}, err
	}
	return model.String(strings.Trim(recv.Text(), cut)), nil
}

func replaceMethod(recv model.Value, args []model.Value) (model.Value, error) {
	oldS, err := argString("replace", args[0])
	if err != nil {
		return model.Value{}, err
	}
	newS, err := argString("replace", args[1])
	if err != nil {
		return model.Value{}, err
	}
	return model.String(strings.ReplaceAll(recv.Text(), oldS, newS)), nil
}

func splitMethod(recv model.Value, args []model.Value) (model.Value, error) {
	sep, err := argString("split", args[0])
	if err != nil {
		return model.Value{}, err
	}
	parts := strings.Split(recv.Text(), sep)
	items := make([]model.Value, len(parts))
	for i, p := range parts {
		items[i] = model.String(p)
	}
	return model.Seq(items...), nil
}

func joinMethod(recv model.Value, args []model.Value) (model.Value, error) {
	sep, err := argString("join", args[0])
	if err != nil {
		return model.Value{}, err
	}
	if recv.Kind() != model.KindSeq {
		return model.Value{}, &EvalError{Method: "join", Msg: "receiver must be a list, got " + recv.Kind().String()}
	}
	parts := make([]string, 0, recv.Len())
	for _, item := range recv.Items() {
		parts = append(parts, item.Text())
	}
	return model.String(strings.Join(parts, sep)), nil
}

func lenMethod(recv model.Value, _ []model.Value) (model.Value, error) {
	switch recv.Kind() {
	case model.KindSeq, model.KindMap, model.KindString:
		return model.Int(int64(recv.Len())), nil
	}
	return model.Value{}, &EvalError{Method: "len", Msg: "receiver has no length: " + recv.Kind().String()}
}

func strMethod(recv model.Value, _ []model.Value) (model.Value, error) {
	return model.String(recv.Text()), nil
}

func intMethod(recv model.Value, _ []model.Value) (model.Value, error) {
	switch recv.Kind() {
	case model.KindInt:
		return recv, nil
	case model.KindFloat:
		return model.Int(int64(math.Trunc(recv.Float()))), nil
	case model.KindBool:
		if recv.Bool() {
			return model.Int(1), nil
		}
		return model.Int(0), nil
	case model.KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(recv.Str()), 10, 64)
		if err != nil {
			return model.Value{}, &EvalError{Method: "int", Msg: "cannot convert " + strconv.Quote(recv.Str())}
		}
		return model.Int(i), nil
	}
	return model.Value{}, &EvalError{Method: "int", Msg: "cannot convert " + recv.Kind().String()}
}
