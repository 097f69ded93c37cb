// Package fakeserver is a stand-in for redis-server in tests.
//
// Test packages call Main from TestMain. The test binary then serves two
// roles: run normally it executes the tests, and run with the configuration
// path as its only argument (and EnvVar set) it behaves like a tiny
// redis-server listening on the configured unix socket. Binary returns the
// path to use as the server binary.
//
// The special directive "fake-mode" selects failure behavior:
//
//	crash            exit with status 1 before listening
//	never-ready      keep running without ever listening
//	ignore-shutdown  refuse SHUTDOWN and ignore SIGTERM
package fakeserver

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/tidwall/redcon"
)

// EnvVar marks a re-executed test binary as a fake server.
const EnvVar = "REDISLITE_FAKE_SERVER"

// Main runs the fake server when the binary was started as one, and the
// tests otherwise.
func Main(m *testing.M) {
	if os.Getenv(EnvVar) == "1" && len(os.Args) == 2 {
		os.Exit(Serve(os.Args[1]))
	}
	if err := os.Setenv(EnvVar, "1"); err != nil {
		fmt.Fprintln(os.Stderr, "fakeserver:", err)
		os.Exit(2)
	}
	os.Exit(m.Run())
}

// Binary returns the path of the running test binary.
func Binary(tb testing.TB) string {
	tb.Helper()
	exe, err := os.Executable()
	if err != nil {
		tb.Fatalf("locate test binary: %v", err)
	}
	return exe
}

type config struct {
	socket string
	dir    string
	dbfile string
	mode   string
}

func parseConfig(path string) (config, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is the config the supervisor wrote
	if err != nil {
		return config{}, err
	}
	defer func() { _ = f.Close() }()

	var c config
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, _ := strings.Cut(sc.Text(), " ")
		value = unquote(value)
		switch key {
		case "unixsocket":
			c.socket = value
		case "dir":
			c.dir = value
		case "dbfilename":
			c.dbfile = value
		case "fake-mode":
			c.mode = value
		}
	}
	if c.socket == "" {
		return config{}, fmt.Errorf("no unixsocket in %s", path)
	}
	return c, sc.Err()
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		s = strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(s)
	}
	return s
}

type server struct {
	cfg    config
	mu     sync.Mutex
	data   map[string]string
	graphs map[string]struct{}
}

// Serve runs the fake server for the config at path and returns the exit code.
func Serve(path string) int {
	cfg, err := parseConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fakeserver:", err)
		return 1
	}

	switch cfg.mode {
	case "crash":
		fmt.Fprintln(os.Stderr, "fakeserver: crashing on request")
		return 1
	case "never-ready":
		for {
			time.Sleep(time.Hour)
		}
	case "ignore-shutdown":
		signal.Ignore(syscall.SIGTERM)
	}

	s := &server{cfg: cfg, data: make(map[string]string), graphs: make(map[string]struct{})}
	s.load()

	if cfg.mode != "ignore-shutdown" {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGTERM)
		go func() {
			<-sigs
			s.exit(true)
		}()
	}

	err = redcon.ListenAndServeNetwork("unix", cfg.socket, s.handle,
		func(redcon.Conn) bool { return true },
		func(redcon.Conn, error) {})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fakeserver:", err)
		return 1
	}
	return 0
}

func (s *server) dbPath() string {
	if s.cfg.dbfile == "" {
		return ""
	}
	return filepath.Join(s.cfg.dir, s.cfg.dbfile)
}

// load reads keys saved by a previous instance. The file format is one
// strconv-quoted key and value per line.
func (s *server) load() {
	f, err := os.Open(s.dbPath())
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "\t")
		if !ok {
			continue
		}
		key, err1 := strconv.Unquote(k)
		val, err2 := strconv.Unquote(v)
		if err1 == nil && err2 == nil {
			s.data[key] = val
		}
	}
}

func (s *server) save() error {
	path := s.dbPath()
	if path == "" {
		return nil
	}
	s.mu.Lock()
	var b strings.Builder
	for k, v := range s.data {
		b.WriteString(strconv.Quote(k) + "\t" + strconv.Quote(v) + "\n")
	}
	s.mu.Unlock()
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

func (s *server) exit(save bool) {
	if save {
		_ = s.save()
	}
	_ = os.Remove(s.cfg.socket)
	os.Exit(0)
}

func (s *server) handle(conn redcon.Conn, cmd redcon.Command) {
	name := strings.ToUpper(string(cmd.Args[0]))
	args := cmd.Args[1:]

	switch name {
	case "PING":
		if len(args) > 0 {
			conn.WriteBulk(args[0])
			return
		}
		conn.WriteString("PONG")
	case "HELLO":
		conn.WriteError("ERR unknown command 'HELLO'")
	case "CLIENT", "SELECT":
		conn.WriteString("OK")
	case "QUIT":
		conn.WriteString("OK")
		_ = conn.Close()
	case "SHUTDOWN":
		if s.cfg.mode == "ignore-shutdown" {
			conn.WriteError("ERR shutdown refused")
			return
		}
		nosave := len(args) > 0 && strings.EqualFold(string(args[0]), "NOSAVE")
		s.exit(!nosave)
	case "SAVE":
		if err := s.save(); err != nil {
			conn.WriteError("ERR " + err.Error())
			return
		}
		conn.WriteString("OK")
	case "INFO":
		conn.WriteBulkString("# Server\r\nredis_version:7.2.0-fake\r\nprocess_id:" +
			strconv.Itoa(os.Getpid()) + "\r\n")
	default:
		s.handleData(conn, name, args)
	}
}

func (s *server) handleData(conn redcon.Conn, name string, args [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case "SET":
		if len(args) < 2 {
			conn.WriteError("ERR wrong number of arguments for 'set' command")
			return
		}
		s.data[string(args[0])] = string(args[1])
		conn.WriteString("OK")
	case "GET":
		if len(args) != 1 {
			conn.WriteError("ERR wrong number of arguments for 'get' command")
			return
		}
		v, ok := s.data[string(args[0])]
		if !ok {
			conn.WriteNull()
			return
		}
		conn.WriteBulkString(v)
	case "DEL", "EXISTS":
		n := 0
		for _, a := range args {
			if _, ok := s.data[string(a)]; ok {
				n++
				if name == "DEL" {
					delete(s.data, string(a))
				}
			}
		}
		conn.WriteInt(n)
	case "KEYS":
		keys := make([]string, 0, len(s.data))
		for k := range s.data {
			if len(args) == 0 || matches(string(args[0]), k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		conn.WriteArray(len(keys))
		for _, k := range keys {
			conn.WriteBulkString(k)
		}
	case "FLUSHDB":
		s.data = make(map[string]string)
		conn.WriteString("OK")
	case "GRAPH.QUERY", "GRAPH.RO_QUERY":
		s.graphQuery(conn, name, args)
	case "GRAPH.DELETE":
		if len(args) != 1 {
			conn.WriteError("ERR wrong number of arguments")
			return
		}
		if _, ok := s.graphs[string(args[0])]; !ok {
			conn.WriteError("ERR Invalid graph operation on empty key")
			return
		}
		delete(s.graphs, string(args[0]))
		conn.WriteString("Graph removed, internal execution time: 0.1 milliseconds")
	case "GRAPH.COPY":
		if len(args) != 2 {
			conn.WriteError("ERR wrong number of arguments")
			return
		}
		s.graphs[string(args[1])] = struct{}{}
		conn.WriteString("OK")
	case "GRAPH.LIST":
		names := make([]string, 0, len(s.graphs))
		for g := range s.graphs {
			names = append(names, g)
		}
		sort.Strings(names)
		conn.WriteArray(len(names))
		for _, g := range names {
			conn.WriteBulkString(g)
		}
	case "GRAPH.SLOWLOG":
		conn.WriteArray(1)
		conn.WriteArray(4)
		conn.WriteBulkString("1700000000")
		conn.WriteBulkString("GRAPH.QUERY")
		conn.WriteBulkString("RETURN 1")
		conn.WriteBulkString("0.5")
	default:
		conn.WriteError("ERR unknown command '" + strings.ToLower(name) + "'")
	}
}

// graphQuery answers a tiny subset of queries. "RETURN <n>" yields one row
// with one column; anything starting with CREATE reports created nodes;
// every query records the graph as existing. The last argument before any
// flags is echoed in the statistics so tests can see what was sent.
func (s *server) graphQuery(conn redcon.Conn, name string, args [][]byte) {
	if len(args) < 2 {
		conn.WriteError("ERR wrong number of arguments")
		return
	}
	query := string(args[1])
	flags := make([]string, 0, len(args)-2)
	for _, a := range args[2:] {
		flags = append(flags, string(a))
	}
	if name == "GRAPH.QUERY" || strings.Contains(query, "RETURN") {
		s.graphs[string(args[0])] = struct{}{}
	}

	stats := []string{
		"Cached execution: 0",
		"Query internal execution time: 0.1 milliseconds",
		"Flags: " + strings.Join(flags, " "),
	}

	body := query
	if strings.HasPrefix(body, "CYPHER ") {
		stats = append(stats, "Params: "+strings.TrimPrefix(body[:strings.Index(body+" RETURN", " RETURN")], "CYPHER "))
		if i := strings.Index(body, "RETURN"); i >= 0 {
			body = body[i:]
		}
	}

	switch {
	case strings.HasPrefix(body, "RETURN "):
		conn.WriteArray(3)
		conn.WriteArray(1)
		conn.WriteArray(2)
		conn.WriteInt(1)
		conn.WriteBulkString("x")
		conn.WriteArray(1)
		conn.WriteArray(1)
		conn.WriteArray(2)
		conn.WriteInt(3) // VALUE_INTEGER
		v, _ := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(body, "RETURN ")))
		conn.WriteInt(v)
	case strings.HasPrefix(body, "CREATE"):
		if name == "GRAPH.RO_QUERY" {
			conn.WriteError("graph.RO_QUERY is to be executed only on read-only queries")
			return
		}
		stats = slices.Insert(stats, 0, "Nodes created: "+strconv.Itoa(strings.Count(body, "(")))
		conn.WriteArray(1)
	default:
		conn.WriteArray(1)
	}
	conn.WriteArray(len(stats))
	for _, st := range stats {
		conn.WriteBulkString(st)
	}
}

// matches implements the "*" and exact-match subset of KEYS patterns.
func matches(pattern, key string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == key
}
