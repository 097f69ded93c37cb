package core

import (
	"context"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestQueryArgs(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts []QueryOption
		want []any
	}{
		"plain": {
			want: []any{"GRAPH.QUERY", "g", "RETURN 1", "--compact"},
		},
		"timeout in milliseconds": {
			opts: []QueryOption{WithQueryTimeout(1500 * time.Millisecond)},
			want: []any{"GRAPH.QUERY", "g", "RETURN 1", "--compact", "timeout", int64(1500)},
		},
		"sub-millisecond timeout rounds up": {
			opts: []QueryOption{WithQueryTimeout(time.Microsecond)},
			want: []any{"GRAPH.QUERY", "g", "RETURN 1", "--compact", "timeout", int64(1)},
		},
		"params sorted by name": {
			opts: []QueryOption{WithParams(map[string]any{
				"name": `Al "the" pal`,
				"age":  33,
				"tags": []any{"a", true, nil},
				"geo":  map[string]any{"lon": 1.5, "lat": -2},
			})},
			want: []any{
				"GRAPH.QUERY", "g",
				`CYPHER age=33 geo={lat: -2, lon: 1.5} name="Al \"the\" pal" tags=["a", true, null] RETURN 1`,
				"--compact",
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := queryArgs("GRAPH.QUERY", "g", "RETURN 1", tc.opts)
			if err != nil {
				t.Fatalf("queryArgs() error: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("queryArgs() = %#v, want %#v", got, tc.want)
			}
		})
	}

	t.Run("unsupported parameter", func(t *testing.T) {
		t.Parallel()
		_, err := queryArgs("GRAPH.QUERY", "g", "RETURN $x",
			[]QueryOption{WithParams(map[string]any{"x": struct{}{}})})
		if err == nil || !strings.Contains(err.Error(), "parameter x") {
			t.Errorf("queryArgs() error = %v, want parameter x", err)
		}
	})
}

func TestParseQueryResult(t *testing.T) {
	t.Parallel()

	stats := []any{"Nodes created: 2", "Query internal execution time: 0.25 milliseconds"}

	t.Run("statistics only", func(t *testing.T) {
		t.Parallel()
		res, err := parseQueryResult([]any{stats})
		if err != nil {
			t.Fatalf("parseQueryResult() error: %v", err)
		}
		if len(res.Header) != 0 || len(res.Rows) != 0 {
			t.Errorf("unexpected result set %v %v", res.Header, res.Rows)
		}
		if v, ok := res.Stat("Nodes created"); !ok || v != 2 {
			t.Errorf("Stat(Nodes created) = %v, %v", v, ok)
		}
		if v, ok := res.Stat("Query internal execution time"); !ok || v != 0.25 {
			t.Errorf("Stat(execution time) = %v, %v", v, ok)
		}
		if _, ok := res.Stat("Relationships created"); ok {
			t.Error("Stat() reported a missing statistic")
		}
	})

	t.Run("header rows and scalar types", func(t *testing.T) {
		t.Parallel()
		reply := []any{
			[]any{[]any{int64(1), "a"}, []any{int64(1), "b"}},
			[]any{
				[]any{
					[]any{int64(valueString), "x"},
					[]any{int64(valueInteger), int64(7)},
				},
				[]any{
					[]any{int64(valueNull), nil},
					[]any{int64(valueArray), []any{
						[]any{int64(valueBoolean), "true"},
						[]any{int64(valueDouble), "1.5"},
					}},
				},
			},
			stats,
		}
		res, err := parseQueryResult(reply)
		if err != nil {
			t.Fatalf("parseQueryResult() error: %v", err)
		}
		if !slices.Equal(res.Header, []string{"a", "b"}) {
			t.Errorf("Header = %v", res.Header)
		}
		want := [][]any{
			{"x", int64(7)},
			{nil, []any{true, 1.5}},
		}
		if !reflect.DeepEqual(res.Rows, want) {
			t.Errorf("Rows = %#v, want %#v", res.Rows, want)
		}
	})

	bad := map[string]any{
		"not an array":   "OK",
		"two parts":      []any{[]any{}, []any{}},
		"bad header":     []any{"x", []any{}, stats},
		"bad cell":       []any{[]any{}, []any{[]any{"x"}}, stats},
		"bad value type": []any{[]any{}, []any{[]any{[]any{"3", int64(1)}}}, stats},
	}
	for name, reply := range bad {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := parseQueryResult(reply); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGraphAgainstServer(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, nil)
	c := openClient(t, m, filepath.Join(t.TempDir(), "graph.db"))
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	g := c.Graph("social")

	res, err := g.Query(ctx, "RETURN 7")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if !slices.Equal(res.Header, []string{"x"}) || !reflect.DeepEqual(res.Rows, [][]any{{int64(7)}}) {
		t.Errorf("Query() = %v %v", res.Header, res.Rows)
	}

	res, err = g.Query(ctx, "RETURN 1",
		WithParams(map[string]any{"a": 1}), WithQueryTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Query() with params error: %v", err)
	}
	if got := res.Statistics["Params"]; got != "a=1" {
		t.Errorf("server saw params %q, want a=1", got)
	}
	if got := res.Statistics["Flags"]; got != "--compact timeout 100" {
		t.Errorf("server saw flags %q", got)
	}

	res, err = g.Query(ctx, "CREATE (a),(b)")
	if err != nil {
		t.Fatalf("Query(CREATE) error: %v", err)
	}
	if n, _ := res.Stat("Nodes created"); n != 2 {
		t.Errorf("Nodes created = %v, want 2", n)
	}
	if _, err := g.ROQuery(ctx, "CREATE (c)"); err == nil {
		t.Error("ROQuery(CREATE) succeeded")
	}

	clone, err := g.Copy(ctx, "social-copy")
	if err != nil {
		t.Fatalf("Copy() error: %v", err)
	}
	if clone.Name() != "social-copy" {
		t.Errorf("clone name = %q", clone.Name())
	}
	names, err := c.ListGraphs(ctx)
	if err != nil || !slices.Equal(names, []string{"social", "social-copy"}) {
		t.Errorf("ListGraphs() = %v, %v", names, err)
	}

	slow, err := g.SlowLog(ctx)
	if err != nil {
		t.Fatalf("SlowLog() error: %v", err)
	}
	if len(slow) != 1 || slow[0].Query != "RETURN 1" || slow[0].Duration != 500*time.Microsecond {
		t.Errorf("SlowLog() = %+v", slow)
	}

	if err := g.Delete(ctx); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := g.Delete(ctx); err == nil {
		t.Error("second Delete() succeeded")
	}
}

func TestAsyncGraph(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, nil)
	a := openAsync(t, m, filepath.Join(t.TempDir(), "agraph.db"))
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	ctx := context.Background()
	g := a.Graph("g")

	q := g.Query(ctx, "RETURN 3")
	ro := g.ROQuery(ctx, "RETURN 4")
	cp := g.Copy(ctx, "g2")
	list := a.ListGraphs(ctx)
	del := g.Delete(ctx)

	if res, err := q.Await(ctx); err != nil || !reflect.DeepEqual(res.Rows, [][]any{{int64(3)}}) {
		t.Errorf("Query() = %v, %v", res, err)
	}
	if res, err := ro.Await(ctx); err != nil || !reflect.DeepEqual(res.Rows, [][]any{{int64(4)}}) {
		t.Errorf("ROQuery() = %v, %v", res, err)
	}
	if clone, err := cp.Await(ctx); err != nil || clone.Name() != "g2" {
		t.Errorf("Copy() = %v, %v", clone, err)
	}
	if names, err := list.Await(ctx); err != nil || !slices.Equal(names, []string{"g", "g2"}) {
		t.Errorf("ListGraphs() = %v, %v", names, err)
	}
	if _, err := del.Await(ctx); err != nil {
		t.Errorf("Delete() error: %v", err)
	}
	if _, err := g.SlowLog(ctx).Await(ctx); err != nil {
		t.Errorf("SlowLog() error: %v", err)
	}
}
