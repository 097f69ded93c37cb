package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueryOption configures a graph query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	params  map[string]any
	timeout time.Duration
}

// WithParams binds query parameters, referenced as $name in the query.
// Values may be nil, strings, bools, integers, floats, or slices and
// string-keyed maps of those.
func WithParams(params map[string]any) QueryOption {
	return func(o *queryOptions) { o.params = params }
}

// WithQueryTimeout bounds the query run time on the server. It is sent in
// whole milliseconds; a positive value below one millisecond is rounded up.
func WithQueryTimeout(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.timeout = d }
}

// QueryResult is the parsed reply of a graph query.
type QueryResult struct {
	// Header holds the column names. Empty for queries returning nothing.
	Header []string
	// Rows holds one slice per record. Scalars decode to nil, string,
	// int64, bool or float64 and arrays to []any. Nodes, edges, paths,
	// maps and points are left in their compact wire form.
	Rows [][]any
	// Statistics maps each statistic label to its text, for example
	// "Nodes created" to "2".
	Statistics map[string]string
}

// Stat returns the leading number of the statistic called name.
func (r *QueryResult) Stat(name string) (float64, bool) {
	s, ok := r.Statistics[name]
	if !ok {
		return 0, false
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SlowLogEntry is one entry of GRAPH.SLOWLOG.
type SlowLogEntry struct {
	Time     time.Time
	Command  string
	Query    string
	Duration time.Duration
}

// Value types of the compact result format.
const (
	valueNull    = 1
	valueString  = 2
	valueInteger = 3
	valueBoolean = 4
	valueDouble  = 5
	valueArray   = 6
)

// Graph is a named graph on the server reached through a Client.
type Graph struct {
	name string
	c    *Client
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Query runs a Cypher query that may modify the graph.
func (g *Graph) Query(ctx context.Context, query string, opts ...QueryOption) (*QueryResult, error) {
	rdb, err := g.c.conn()
	if err != nil {
		return nil, err
	}
	return graphQuery(ctx, rdb, "GRAPH.QUERY", g.name, query, opts)
}

// ROQuery runs a read-only Cypher query.
func (g *Graph) ROQuery(ctx context.Context, query string, opts ...QueryOption) (*QueryResult, error) {
	rdb, err := g.c.conn()
	if err != nil {
		return nil, err
	}
	return graphQuery(ctx, rdb, "GRAPH.RO_QUERY", g.name, query, opts)
}

// Delete removes the graph.
func (g *Graph) Delete(ctx context.Context) error {
	rdb, err := g.c.conn()
	if err != nil {
		return err
	}
	_, err = graphDelete(ctx, rdb, g.name)
	return err
}

// Copy clones the graph under clone and returns the clone.
func (g *Graph) Copy(ctx context.Context, clone string) (*Graph, error) {
	rdb, err := g.c.conn()
	if err != nil {
		return nil, err
	}
	if _, err := graphCopy(ctx, rdb, g.name, clone); err != nil {
		return nil, err
	}
	return g.c.Graph(clone), nil
}

// SlowLog returns up to ten of the slowest recent queries on the graph.
func (g *Graph) SlowLog(ctx context.Context) ([]SlowLogEntry, error) {
	rdb, err := g.c.conn()
	if err != nil {
		return nil, err
	}
	return graphSlowLog(ctx, rdb, g.name)
}

// AsyncGraph is a named graph reached through an AsyncClient.
type AsyncGraph struct {
	name string
	a    *AsyncClient
}

// Name returns the graph name.
func (g *AsyncGraph) Name() string { return g.name }

// Query queues a Cypher query that may modify the graph.
func (g *AsyncGraph) Query(ctx context.Context, query string, opts ...QueryOption) *Future[*QueryResult] {
	return submit(ctx, g.a, func(ctx context.Context, rdb *redis.Client) (*QueryResult, error) {
		return graphQuery(ctx, rdb, "GRAPH.QUERY", g.name, query, opts)
	})
}

// ROQuery queues a read-only Cypher query.
func (g *AsyncGraph) ROQuery(ctx context.Context, query string, opts ...QueryOption) *Future[*QueryResult] {
	return submit(ctx, g.a, func(ctx context.Context, rdb *redis.Client) (*QueryResult, error) {
		return graphQuery(ctx, rdb, "GRAPH.RO_QUERY", g.name, query, opts)
	})
}

// Delete queues the removal of the graph.
func (g *AsyncGraph) Delete(ctx context.Context) *Future[string] {
	return submit(ctx, g.a, func(ctx context.Context, rdb *redis.Client) (string, error) {
		return graphDelete(ctx, rdb, g.name)
	})
}

// Copy queues a clone of the graph under clone.
func (g *AsyncGraph) Copy(ctx context.Context, clone string) *Future[*AsyncGraph] {
	return submit(ctx, g.a, func(ctx context.Context, rdb *redis.Client) (*AsyncGraph, error) {
		if _, err := graphCopy(ctx, rdb, g.name, clone); err != nil {
			return nil, err
		}
		return g.a.Graph(clone), nil
	})
}

// SlowLog queues a GRAPH.SLOWLOG.
func (g *AsyncGraph) SlowLog(ctx context.Context) *Future[[]SlowLogEntry] {
	return submit(ctx, g.a, func(ctx context.Context, rdb *redis.Client) ([]SlowLogEntry, error) {
		return graphSlowLog(ctx, rdb, g.name)
	})
}

func graphQuery(ctx context.Context, rdb *redis.Client, cmd, graph, query string, opts []QueryOption) (*QueryResult, error) {
	args, err := queryArgs(cmd, graph, query, opts)
	if err != nil {
		return nil, err
	}
	reply, err := rdb.Do(ctx, args...).Result()
	if err != nil {
		return nil, err
	}
	return parseQueryResult(reply)
}

func graphDelete(ctx context.Context, rdb *redis.Client, graph string) (string, error) {
	return rdb.Do(ctx, "GRAPH.DELETE", graph).Text()
}

func graphCopy(ctx context.Context, rdb *redis.Client, graph, clone string) (string, error) {
	return rdb.Do(ctx, "GRAPH.COPY", graph, clone).Text()
}

func graphSlowLog(ctx context.Context, rdb *redis.Client, graph string) ([]SlowLogEntry, error) {
	reply, err := rdb.Do(ctx, "GRAPH.SLOWLOG", graph).Slice()
	if err != nil {
		return nil, err
	}
	out := make([]SlowLogEntry, 0, len(reply))
	for _, item := range reply {
		fields, ok := item.([]any)
		if !ok || len(fields) < 4 {
			return nil, fmt.Errorf("unexpected slowlog entry %v", item)
		}
		ts, err := strconv.ParseInt(fmt.Sprint(fields[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("slowlog timestamp: %w", err)
		}
		ms, err := strconv.ParseFloat(fmt.Sprint(fields[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("slowlog duration: %w", err)
		}
		out = append(out, SlowLogEntry{
			Time:     time.Unix(ts, 0),
			Command:  fmt.Sprint(fields[1]),
			Query:    fmt.Sprint(fields[2]),
			Duration: time.Duration(ms * float64(time.Millisecond)),
		})
	}
	return out, nil
}

// queryArgs builds the command line of a graph query. Parameters travel as
// a "CYPHER name=value ..." prefix of the query text.
func queryArgs(cmd, graph, query string, opts []QueryOption) ([]any, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(o.params) > 0 {
		header, err := cypherParams(o.params)
		if err != nil {
			return nil, err
		}
		query = header + " " + query
	}

	args := []any{cmd, graph, query, "--compact"}
	if o.timeout > 0 {
		ms := o.timeout.Milliseconds()
		if ms == 0 {
			ms = 1
		}
		args = append(args, "timeout", ms)
	}
	return args, nil
}

func cypherParams(params map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString("CYPHER")
	for _, k := range slices.Sorted(maps.Keys(params)) {
		v, err := cypherValue(params[k])
		if err != nil {
			return "", fmt.Errorf("parameter %s: %w", k, err)
		}
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	return b.String(), nil
}

func cypherValue(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "null", nil
	case string:
		return strconv.Quote(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			s, err := cypherValue(e)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case []string:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, strconv.Quote(e))
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case map[string]any:
		parts := make([]string, 0, len(x))
		for _, k := range slices.Sorted(maps.Keys(x)) {
			s, err := cypherValue(x[k])
			if err != nil {
				return "", err
			}
			parts = append(parts, k+": "+s)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	default:
		return "", fmt.Errorf("unsupported parameter type %T", v)
	}
}

// parseQueryResult decodes a compact reply: [stats] for queries without a
// result set, [header, rows, stats] otherwise.
func parseQueryResult(reply any) (*QueryResult, error) {
	parts, ok := reply.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected query reply %T", reply)
	}

	res := &QueryResult{}
	var stats any
	switch len(parts) {
	case 1:
		stats = parts[0]
	case 3:
		header, err := parseHeader(parts[0])
		if err != nil {
			return nil, err
		}
		rows, err := parseRows(parts[1])
		if err != nil {
			return nil, err
		}
		res.Header = header
		res.Rows = rows
		stats = parts[2]
	default:
		return nil, fmt.Errorf("unexpected query reply with %d parts", len(parts))
	}

	lines, ok := stats.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected statistics %T", stats)
	}
	res.Statistics = make(map[string]string, len(lines))
	for _, l := range lines {
		k, v, _ := strings.Cut(fmt.Sprint(l), ":")
		res.Statistics[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return res, nil
}

func parseHeader(v any) ([]string, error) {
	cols, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected header %T", v)
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		pair, ok := c.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("unexpected header column %v", c)
		}
		names = append(names, fmt.Sprint(pair[1]))
	}
	return names, nil
}

func parseRows(v any) ([][]any, error) {
	records, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected rows %T", v)
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		cells, ok := r.([]any)
		if !ok {
			return nil, fmt.Errorf("unexpected row %T", r)
		}
		row := make([]any, 0, len(cells))
		for _, c := range cells {
			val, err := decodeValue(c)
			if err != nil {
				return nil, err
			}
			row = append(row, val)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// decodeValue decodes one [type, value] cell.
func decodeValue(cell any) (any, error) {
	pair, ok := cell.([]any)
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("unexpected value %v", cell)
	}
	typ, ok := pair[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %v", pair[0])
	}
	raw := pair[1]

	switch typ {
	case valueNull:
		return nil, nil
	case valueString:
		return fmt.Sprint(raw), nil
	case valueInteger:
		if n, ok := raw.(int64); ok {
			return n, nil
		}
		return strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	case valueBoolean:
		return strconv.ParseBool(fmt.Sprint(raw))
	case valueDouble:
		return strconv.ParseFloat(fmt.Sprint(raw), 64)
	case valueArray:
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("unexpected array %T", raw)
		}
		out := make([]any, 0, len(items))
		for _, it := range items {
			d, err := decodeValue(it)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, nil
	default:
		return raw, nil
	}
}
