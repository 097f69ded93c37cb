package serverconf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testParams() Params {
	return Params{
		Target:  "/var/lib/app/data.db",
		Socket:  "/tmp/inst/redis.socket",
		LogFile: "/tmp/inst/redis.log",
	}
}

// values returns every value rendered for key, in order.
func values(t *testing.T, conf []byte, key string) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(string(conf), "\n") {
		k, v, _ := strings.Cut(line, " ")
		if k == key {
			out = append(out, v)
		}
	}
	return out
}

func TestRender_Defaults(t *testing.T) {
	t.Parallel()

	conf, err := Render(testParams(), nil)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	tests := map[string][]string{
		"unixsocket": {`"/tmp/inst/redis.socket"`},
		"dir":        {`"/var/lib/app"`},
		"dbfilename": {`"data.db"`},
		"port":       {"0"},
		"daemonize":  {"no"},
		"save":       {"900 1", "300 10", "60 10000"},
		"loadmodule": nil,
	}
	for key, want := range tests {
		got := values(t, conf, key)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestRender_ModulePath(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.ModulePath = "/opt/falkordb/falkordb.so"
	conf, err := Render(p, nil)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if got := values(t, conf, "loadmodule"); len(got) != 1 || got[0] != `"/opt/falkordb/falkordb.so"` {
		t.Errorf("loadmodule = %q", got)
	}
}

func TestRender_Overrides(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		overrides map[string]string
		key       string
		want      []string
	}{
		"replaces single default": {
			overrides: map[string]string{"appendonly": "yes"},
			key:       "appendonly",
			want:      []string{"yes"},
		},
		"replaces all repeated defaults": {
			overrides: map[string]string{"save": ""},
			key:       "save",
			want:      []string{""},
		},
		"multi-line value repeats directive": {
			overrides: map[string]string{"save": "10 1\n20 2"},
			key:       "save",
			want:      []string{"10 1", "20 2"},
		},
		"key is case-insensitive": {
			overrides: map[string]string{"MaxMemory": "64mb"},
			key:       "maxmemory",
			want:      []string{"64mb"},
		},
		"new key is appended": {
			overrides: map[string]string{"maxclients": "100"},
			key:       "maxclients",
			want:      []string{"100"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			conf, err := Render(testParams(), tc.overrides)
			if err != nil {
				t.Fatalf("Render() error: %v", err)
			}
			got := values(t, conf, tc.key)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Errorf("%s = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestRender_EmptyValueRendersBareKey(t *testing.T) {
	t.Parallel()

	conf, err := Render(testParams(), map[string]string{"save": ""})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(string(conf), "\nsave\n") {
		t.Errorf("expected a bare save line in:\n%s", conf)
	}
}

func TestRender_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		params    Params
		overrides map[string]string
		want      error
	}{
		"reserved unixsocket": {
			params:    testParams(),
			overrides: map[string]string{"unixsocket": "/tmp/other.sock"},
			want:      ErrReservedKey,
		},
		"reserved dir in upper case": {
			params:    testParams(),
			overrides: map[string]string{"DIR": "/"},
			want:      ErrReservedKey,
		},
		"key with whitespace": {
			params:    testParams(),
			overrides: map[string]string{"max memory": "1"},
			want:      ErrInvalidOverride,
		},
		"empty key": {
			params:    testParams(),
			overrides: map[string]string{"": "1"},
			want:      ErrInvalidOverride,
		},
		"missing socket": {
			params: Params{Target: "/a.db", LogFile: "/l"},
			want:   ErrMissingParam,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if _, err := Render(tc.params, tc.overrides); !errors.Is(err, tc.want) {
				t.Errorf("Render() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRender_QuotesPaths(t *testing.T) {
	t.Parallel()

	p := testParams()
	p.Target = `/data/my "odd" dir/app.db`
	conf, err := Render(p, nil)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if got := values(t, conf, "dir"); len(got) != 1 || got[0] != `"/data/my \"odd\" dir"` {
		t.Errorf("dir = %q", got)
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "redis.conf")
	if err := Write(path, testParams(), map[string]string{"maxmemory": "1mb"}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: test path
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "maxmemory 1mb\n") {
		t.Errorf("written config missing override:\n%s", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}
