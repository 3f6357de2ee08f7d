package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindSeq
	KindMap
	KindHandle
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	case KindTime:
		return "datetime"
	case KindSeq:
		return "list"
	case KindMap:
		return "map"
	case KindHandle:
		return "handle"
	}
	return "unknown"
}

// TextLayout is the layout used when a datetime is coerced to text.
const TextLayout = time.DateTime

// Value is a generic document node: null, bool, number, string, datetime,
// sequence, ordered mapping or an opaque handle. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	seq  []Value
	m    *Map
	h    any
}

// Attributer is implemented by handles that expose read-only attributes to
// path traversal and expressions.
type Attributer interface {
	Attr(name string) (Value, bool)
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }
func Seq(items ...Value) Value { return Value{kind: KindSeq, seq: items} }
func Handle(h any) Value { return Value{kind: KindHandle, h: h} }
func MapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool { return v.b }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}
func (v Value) Str() string { return v.s }
func (v Value) Time() time.Time { return v.t }
func (v Value) Items() []Value { return v.seq }
func (v Value) Map() *Map { return v.m }
func (v Value) HandleValue() any { return v.h }
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }
func (v Value) IsString() bool { return v.kind == KindString }

// Len returns the number of items of a sequence or mapping, the byte length
// of a string and zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindSeq:
		return len(v.seq)
	case KindMap:
		return v.m.Len()
	case KindString:
		return len(v.s)
	}
	return 0
}

// Get returns the member named key of a mapping or an attribute handle.
func (v Value) Get(key string) (Value, bool) {
	switch v.kind {
	case KindMap:
		return v.m.Get(key)
	case KindHandle:
		if a, ok := v.h.(Attributer); ok {
			return a.Attr(key)
		}
	}
	return Value{}, false
}

// Index returns the i-th item of a sequence. Negative indexes count from the
// end.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindSeq {
		return Value{}, false
	}
	if i < 0 {
		i += len(v.seq)
	}
	if i < 0 || i >= len(v.seq) {
		return Value{}, false
	}
	return v.seq[i], true
}

// Truthy follows the usual template rules: null, false, zero, empty string
// and empty collections are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != "" && v.s != "false" && v.s != "0"
	case KindTime:
		return !v.t.IsZero()
	case KindSeq:
		return len(v.seq) > 0
	case KindMap:
		return v.m.Len() > 0
	}
	return v.h != nil
}

// Text coerces the value to text for template concatenation.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(TextLayout)
	case KindSeq, KindMap:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	if s, ok := v.h.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v.h)
}

func (v Value) String() string { return v.Text() }

// Equal compares two values structurally. Integers and floats compare by
// numeric value.
func (v Value) Equal(o Value) bool {
	if v.IsNumber() && o.IsNumber() {
		if v.kind == KindInt && o.kind == KindInt {
			return v.i == o.i
		}
		return v.Float() == o.Float()
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindTime:
		return v.t.Equal(o.t)
	case KindSeq:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	case KindHandle:
		return v.h == o.h
	}
	return false
}

// Interface converts the value into plain Go values: nil, bool, int64,
// float64, string, time.Time, []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindTime:
		return v.t
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.m.Len())
		v.m.Range(func(k string, item Value) bool {
			out[k] = item.Interface()
			return true
		})
		return out
	}
	return v.h
}

// FromAny converts plain Go values (as produced by encoding/json or by hand)
// into a Value. Map keys are sorted because Go maps carry no order.
func FromAny(x any) Value {
	switch val := x.(type) {
	case nil:
		return Null()
	case Value:
		return val
	case bool:
		return Bool(val)
	case int:
		return Int(int64(val))
	case int32:
		return Int(int64(val))
	case int64:
		return Int(val)
	case uint:
		return Int(int64(val))
	case uint64:
		return Int(int64(val))
	case float32:
		return Float(float64(val))
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Int(int64(val))
		}
		return Float(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i)
		}
		f, _ := val.Float64()
		return Float(f)
	case string:
		return String(val)
	case time.Time:
		return Time(val)
	case []any:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromAny(item)
		}
		return Seq(items...)
	case []string:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = String(item)
		}
		return Seq(items...)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, FromAny(val[k]))
		}
		return MapValue(m)
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, String(val[k]))
		}
		return MapValue(m)
	case *Map:
		return MapValue(val)
	}
	return Handle(x)
}

// MarshalJSON encodes the value; handles are encoded through their own
// marshaler or as text.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool, KindInt, KindFloat, KindString:
		return json.Marshal(v.Interface())
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339))
	case KindSeq:
		if v.seq == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.seq)
	case KindMap:
		return v.m.MarshalJSON()
	}
	if m, ok := v.h.(json.Marshaler); ok {
		return m.MarshalJSON()
	}
	return json.Marshal(v.Text())
}

// UnmarshalJSON decodes arbitrary JSON, keeping object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeJSON(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func decodeJSON(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, _ := kt.(string)
				item, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return MapValue(m), nil
		case '[':
			items := make([]Value, 0)
			for dec.More() {
				item, err := decodeJSON(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Seq(items...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q", t)
	}
	return FromAny(tok), nil
}
