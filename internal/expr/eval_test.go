package expr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go-workflow/internal/errkind"
	"go-workflow/internal/model"
	"go-workflow/internal/scope"
)

func testScope() *scope.Store {
	root := scope.New(
		scope.WithEnv(scope.MapEnv{"DATA_HOME": "/data", "USER": "etl"}),
		scope.WithSecrets(scope.MapSecrets{"sftp_pwd": "p@ss"}),
		scope.WithParams(model.MapOf(
			"run_date", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			"source", map[string]any{"schema": "raw", "tables": []any{"customer", "sales"}},
			"limit", 10,
			"name", "  Mixed Case  ",
		)),
	)
	root.Freeze()
	return root.WithScope(model.MapOf(
		"matrix", map[string]any{"table": "customer", "system": "csv", "partition": 1},
	))
}

func TestRender_DateFormat(t *testing.T) {
	t.Parallel()
	ev := New()
	got, err := ev.Render(context.Background(), testScope(), "${{ params.run_date.fmt('%Y%m%d') }}")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got.Kind() != model.KindString || got.Str() != "20240501" {
		t.Errorf("got %v (%s), want 20240501", got, got.Kind())
	}
}

func TestRender_MixedConcatenation(t *testing.T) {
	t.Parallel()
	ev := New()
	got, err := ev.Render(context.Background(), testScope(), "/raw/${{ matrix.table }}_${{ matrix.system }}")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got.Str() != "/raw/customer_csv" {
		t.Errorf("got %q, want /raw/customer_csv", got.Str())
	}
}

func TestRender_WholeValueKeepsType(t *testing.T) {
	t.Parallel()
	ev := New()
	sc := testScope()
	ctx := context.Background()

	tests := []struct {
		src  string
		kind model.Kind
		text string
	}{
		{"${{ params.run_date }}", model.KindTime, "2024-05-01 00:00:00"},
		{"${{params.limit}}", model.KindInt, "10"},
		{"${{ matrix.partition }}", model.KindInt, "1"},
		{"${{ params.source.tables }}", model.KindSeq, `["customer","sales"]`},
		{"p=${{ matrix.partition }}", model.KindString, "p=1"},
		{"no templates here", model.KindString, "no templates here"},
		{"${{ 'a}}b' }}", model.KindString, "a}}b"},
	}
	for _, tt := range tests {
		got, err := ev.Render(ctx, sc, tt.src)
		if err != nil {
			t.Fatalf("Render(%q): %v", tt.src, err)
		}
		if got.Kind() != tt.kind || got.Text() != tt.text {
			t.Errorf("Render(%q) = %s %q, want %s %q", tt.src, got.Kind(), got.Text(), tt.kind, tt.text)
		}
	}
}

func TestRender_Methods(t *testing.T) {
	t.Parallel()
	ev := New()
	sc := testScope()
	ctx := context.Background()

	tests := map[string]string{
		"${{ matrix.table.upper() }}":                     "CUSTOMER",
		"${{ params.name.strip().lower() }}":              "mixed case",
		"${{ params.source.tables.join(',') }}":           "customer,sales",
		"${{ params.source.tables.len() }}":               "2",
		"${{ 'a-b-c'.split('-')[2] }}":                    "c",
		"${{ matrix.table.replace('cust', 'CUST') }}":     "CUSTomer",
		"${{ '42'.int() }}":                               "42",
		"${{ params.source['schema'] }}":                  "raw",
		"${{ params.source.tables[-1] }}":                 "sales",
		"${{ params.source.tables.0 }}":                   "customer",
		"${{ '2024-05-01'.fmt('%d/%m/%Y') }}":             "01/05/2024",
		"${{ params.source.tables[matrix.partition] }}":   "sales",
		"@secrets{sftp_pwd}":                              "p@ss",
		"user:@secrets{ sftp_pwd }@host":                  "user:p@ss@host",
		"${{ secrets.sftp_pwd }}":                         "p@ss",
		"${{ env.USER }}":                                 "etl",
		"${{ params.run_date.fmt('%Y-%m-%dT%H:%M:%S') }}": "2024-05-01T00:00:00",
	}
	for src, want := range tests {
		got, err := ev.Render(ctx, sc, src)
		if err != nil {
			t.Errorf("Render(%q): %v", src, err)
			continue
		}
		if got.Text() != want {
			t.Errorf("Render(%q) = %q, want %q", src, got.Text(), want)
		}
	}
}

func TestRenderField_EnvShorthand(t *testing.T) {
	t.Parallel()
	ev := New()
	sc := testScope()
	got, err := ev.RenderField(context.Background(), sc, "local:///${DATA_HOME}/in")
	if err != nil {
		t.Fatal(err)
	}
	if got.Str() != "local:////data/in" {
		t.Errorf("got %q", got.Str())
	}
	// Outside connection fields ${VAR} is plain text.
	got, err = ev.Render(context.Background(), sc, "${DATA_HOME}")
	if err != nil || got.Str() != "${DATA_HOME}" {
		t.Errorf("Render kept %q, %v", got.Str(), err)
	}
	if _, err := ev.RenderField(context.Background(), sc, "${MISSING_VAR}"); !errkind.Is(err, errkind.Resolution) {
		t.Errorf("missing env var: %v", err)
	}
}

func TestRender_ResolutionErrors(t *testing.T) {
	t.Parallel()
	ev := New()
	sc := testScope()
	for _, src := range []string{
		"${{ params.missing }}",
		"${{ param.run_date }}",
		"${{ matrix.table.nested }}",
		"prefix ${{ params.source.tables[7] }}",
		"@secrets{unknown}",
	} {
		_, err := ev.Render(context.Background(), sc, src)
		var rerr *ResolutionError
		if !errors.As(err, &rerr) {
			t.Errorf("Render(%q) error = %v, want ResolutionError", src, err)
			continue
		}
		if errkind.Of(err) != errkind.Resolution {
			t.Errorf("Render(%q) kind = %s", src, errkind.Of(err))
		}
	}

	_, err := ev.Render(context.Background(), sc, "${{ param.run_date }}")
	if !strings.Contains(err.Error(), "param.run_date") {
		t.Errorf("error should name the path: %v", err)
	}
}

func TestRender_SyntaxErrors(t *testing.T) {
	t.Parallel()
	ev := New()
	sc := testScope()

	tests := []struct {
		src    string
		offset int
	}{
		{"abc ${{ params.run_date", 4},
		{"${{ }}", 3},
		{"x${{ params..a }}", 12},
		{"${{ params.a( }}", 14},
		{"${{ 'open }}", 0},
		{"${{ params.a # }}", 13},
		{"@secrets{bad name", 0},
	}
	for _, tt := range tests {
		_, err := ev.Render(context.Background(), sc, tt.src)
		var serr *SyntaxError
		if !errors.As(err, &serr) {
			t.Errorf("Render(%q) error = %v, want SyntaxError", tt.src, err)
			continue
		}
		if serr.Offset != tt.offset {
			t.Errorf("Render(%q) offset = %d, want %d (%v)", tt.src, serr.Offset, tt.offset, serr)
		}
		if errkind.Of(err) != errkind.Syntax {
			t.Errorf("Render(%q) kind = %s", tt.src, errkind.Of(err))
		}
	}
}

func TestRender_EvalErrors(t *testing.T) {
	t.Parallel()
	ev := New()
	sc := testScope()
	for _, src := range []string{
		"${{ params.limit.fmt('%Y') }}",
		"${{ matrix.table.nosuch() }}",
		"${{ matrix.table.replace('a') }}",
		"${{ matrix.table.join(',') }}",
	} {
		_, err := ev.Render(context.Background(), sc, src)
		var eerr *EvalError
		if !errors.As(err, &eerr) {
			t.Errorf("Render(%q) error = %v, want EvalError", src, err)
		}
	}
}

func TestEvalDocument(t *testing.T) {
	t.Parallel()
	ev := New()
	doc := model.MapValue(model.MapOf(
		"${{ matrix.table }}", "key is not evaluated",
		"path", "/raw/${{ matrix.table }}_${{ matrix.system }}",
		"partition", "${{ matrix.partition }}",
		"retries", 3,
		"enabled", true,
		"files", []any{"${{ matrix.table }}.csv", 7},
		"nested", map[string]any{"date": "${{ params.run_date.fmt('%Y%m%d') }}"},
	))
	got, err := ev.EvalDocument(context.Background(), testScope(), doc)
	if err != nil {
		t.Fatalf("EvalDocument: %v", err)
	}
	want := model.MapValue(model.MapOf(
		"${{ matrix.table }}", "key is not evaluated",
		"path", "/raw/customer_csv",
		"partition", 1,
		"retries", 3,
		"enabled", true,
		"files", []any{"customer.csv", 7},
		"nested", map[string]any{"date": "20240501"},
	))
	if !got.Equal(want) {
		t.Errorf("got %s\nwant %s", got.Text(), want.Text())
	}
	if keys := got.Map().Keys(); keys[0] != "${{ matrix.table }}" || keys[1] != "path" {
		t.Errorf("key order not preserved: %v", keys)
	}
	// The input document is untouched.
	if v, _ := doc.Get("path"); v.Str() != "/raw/${{ matrix.table }}_${{ matrix.system }}" {
		t.Errorf("input mutated: %q", v.Str())
	}
}

func TestEvalDocument_ErrorNamesLocation(t *testing.T) {
	t.Parallel()
	ev := New()
	doc := model.MapValue(model.MapOf("outer", map[string]any{"items": []any{"ok", "${{ params.nope }}"}}))
	_, err := ev.EvalDocument(context.Background(), testScope(), doc)
	if err == nil || !strings.Contains(err.Error(), "outer.items[1]") {
		t.Fatalf("error = %v", err)
	}
	if errkind.Of(err) != errkind.Resolution {
		t.Errorf("kind = %s", errkind.Of(err))
	}
}

func TestEval_Conditions(t *testing.T) {
	t.Parallel()
	ev := New()
	sc := testScope()
	ctx := context.Background()
	for src, want := range map[string]bool{
		"matrix.partition":     true,
		"false":                false,
		"params.source.tables": true,
		"${{ matrix.system }}": true,
		"''":                   false,
	} {
		v, err := ev.Eval(ctx, sc, src)
		if err != nil {
			t.Fatalf("Eval(%q): %v", src, err)
		}
		if v.Truthy() != want {
			t.Errorf("Eval(%q) truthy = %v, want %v", src, v.Truthy(), want)
		}
	}
}

func TestEvaluator_ConcurrentUse(t *testing.T) {
	t.Parallel()
	ev := New()
	sc := testScope()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ev.Render(context.Background(), sc, "/raw/${{ matrix.table }}")
			if err != nil || got.Str() != "/raw/customer" {
				t.Errorf("got %q, %v", got.Str(), err)
			}
		}()
	}
	wg.Wait()
}

func TestRender_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Render(ctx, testScope(), "${{ matrix.table }}")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
