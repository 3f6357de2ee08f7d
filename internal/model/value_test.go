package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValue_JSONRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       Value
		wantJSON string
		wantKind Kind
	}{
		{"null", Null(), `null`, KindNull},
		{"bool", Bool(true), `true`, KindBool},
		{"int", Int(42), `42`, KindInt},
		{"float", Float(1.5), `1.5`, KindFloat},
		{"whole float reads back as int", Float(2), `2`, KindInt},
		{"string", String("a\"b"), `"a\"b"`, KindString},
		{"empty seq", Seq(), `[]`, KindSeq},
		{"nested", MapValue(MapOf("z", 1, "a", []any{"x", nil}, "m", MapOf("k", false))), `{"z":1,"a":["x",null],"m":{"k":false}}`, KindMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if string(raw) != tt.wantJSON {
				t.Errorf("json = %s, want %s", raw, tt.wantJSON)
			}
			var back Value
			if err := json.Unmarshal(raw, &back); err != nil {
				t.Fatal(err)
			}
			if back.Kind() != tt.wantKind {
				t.Errorf("kind = %s, want %s", back.Kind(), tt.wantKind)
			}
			if !back.Equal(tt.in) {
				t.Errorf("round trip = %v, want %v", back, tt.in)
			}
		})
	}
}

func TestValue_TimeEncodesAsText(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	raw, err := json.Marshal(Time(ts))
	if err != nil {
		t.Fatal(err)
	}
	var back Value
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.Kind() != KindString || back.Str() != "2024-05-01T08:30:00Z" {
		t.Errorf("time decoded as %s %q", back.Kind(), back.Str())
	}
}

func TestMap_JSONKeepsOrder(t *testing.T) {
	t.Parallel()
	var m Map
	if err := json.Unmarshal([]byte(`{"b":1,"a":2,"c":{"y":1,"x":2}}`), &m); err != nil {
		t.Fatal(err)
	}
	if keys := m.Keys(); len(keys) != 3 || keys[0] != "b" || keys[1] != "a" {
		t.Errorf("keys = %v", keys)
	}
	c, _ := m.Get("c")
	if keys := c.Map().Keys(); keys[0] != "y" {
		t.Errorf("nested keys = %v", keys)
	}
	if err := json.Unmarshal([]byte(`[1]`), &m); err == nil {
		t.Error("array decoded into a map")
	}
}

func TestValue_Equal(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"int and whole float", Int(3), Float(3), true},
		{"int and fraction", Int(3), Float(3.5), false},
		{"floats", Float(0.25), Float(0.25), true},
		{"int and numeric text", Int(3), String("3"), false},
		{"nulls", Null(), Null(), true},
		{"null and false", Null(), Bool(false), false},
		{"same instant other zone", Time(ts), Time(ts.In(time.FixedZone("x", 3600))), true},
		{"seq numeric items", Seq(Int(1), Float(2)), Seq(Float(1), Int(2)), true},
		{"seq lengths", Seq(Int(1)), Seq(Int(1), Int(1)), false},
		{"maps ignore order", MapValue(MapOf("a", 1, "b", 2)), MapValue(MapOf("b", 2.0, "a", 1)), true},
		{"maps differ", MapValue(MapOf("a", 1)), MapValue(MapOf("a", 2)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("%v == %v: got %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("not symmetric for %v and %v", tt.a, tt.b)
			}
		})
	}
}

func TestValue_Truthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    Value
		want bool
	}{
		{Null(), false},
		{Int(0), false},
		{Float(0.1), true},
		{String(""), false},
		{String("false"), false},
		{String("0"), false},
		{String("no"), true},
		{Seq(), false},
		{MapValue(NewMap()), false},
		{MapValue(MapOf("a", 1)), true},
	}
	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("Truthy(%s %v) = %v, want %v", tt.v.Kind(), tt.v, got, tt.want)
		}
	}
}
