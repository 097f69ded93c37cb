package serverconf

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/giantswarm/redislite/internal/fileutil"
	"github.com/giantswarm/redislite/internal/sentinel"
)

// ErrReservedKey is returned when an override names a directive the
// supervisor must control.
const ErrReservedKey = sentinel.Error("configuration key is reserved")

// ErrInvalidOverride is returned for empty keys or keys containing whitespace.
const ErrInvalidOverride = sentinel.Error("invalid configuration override")

// ErrMissingParam is returned when a required Params field is empty.
const ErrMissingParam = sentinel.Error("missing configuration parameter")

// reservedKeys are derived from Params and may not be overridden: changing
// any of them would make the instance unreachable or detach it from its target.
var reservedKeys = map[string]struct{}{
	"unixsocket": {},
	"dir":        {},
	"dbfilename": {},
	"daemonize":  {},
	"pidfile":    {},
	"logfile":    {},
	"port":       {},
	"include":    {},
}

// Directive is one "key value" line.
type Directive struct {
	Key   string
	Value string
}

// Params carries the per-instance values the supervisor chose.
type Params struct {
	// Target is the canonical database file path. Its directory becomes
	// "dir" and its base name "dbfilename".
	Target string
	// Socket is the unix socket the server listens on.
	Socket string
	// LogFile receives the server's own log.
	LogFile string
	// ModulePath, when set, is loaded with "loadmodule" (for example FalkorDB).
	ModulePath string
}

func (p Params) validate() error {
	var missing []string
	if p.Target == "" {
		missing = append(missing, "target")
	}
	if p.Socket == "" {
		missing = append(missing, "socket")
	}
	if p.LogFile == "" {
		missing = append(missing, "log file")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingParam, strings.Join(missing, ", "))
	}
	return nil
}

// Defaults returns the directives every instance starts from.
func Defaults(p Params) []Directive {
	d := []Directive{
		{"daemonize", "no"},
		{"port", "0"},
		{"bind", "127.0.0.1"},
		{"unixsocket", quote(p.Socket)},
		{"unixsocketperm", "700"},
		{"timeout", "0"},
		{"tcp-keepalive", "0"},
		{"loglevel", "notice"},
		{"logfile", quote(p.LogFile)},
		{"databases", "16"},
		{"save", "900 1"},
		{"save", "300 10"},
		{"save", "60 10000"},
		{"stop-writes-on-bgsave-error", "yes"},
		{"rdbcompression", "yes"},
		{"rdbchecksum", "yes"},
		{"dbfilename", quote(filepath.Base(p.Target))},
		{"dir", quote(filepath.Dir(p.Target))},
		{"appendonly", "no"},
		{"appendfsync", "everysec"},
	}
	if p.ModulePath != "" {
		d = append(d, Directive{"loadmodule", quote(p.ModulePath)})
	}
	return d
}

// Merge applies overrides to base. Overrides are applied in key order; each
// one removes every base directive with that key and appends its own. A
// value containing newlines expands to one directive per line, which is how
// repeatable keys such as "save" are overridden.
func Merge(base []Directive, overrides map[string]string) ([]Directive, error) {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if err := checkOverrideKey(k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := slices.Clone(base)
	for _, k := range keys {
		norm := strings.ToLower(k)
		out = slices.DeleteFunc(out, func(d Directive) bool { return d.Key == norm })
		for _, line := range strings.Split(overrides[k], "\n") {
			out = append(out, Directive{Key: norm, Value: strings.TrimSpace(line)})
		}
	}
	return out, nil
}

func checkOverrideKey(k string) error {
	if k == "" || strings.ContainsAny(k, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidOverride, k)
	}
	if _, ok := reservedKeys[strings.ToLower(k)]; ok {
		return fmt.Errorf("%w: %s", ErrReservedKey, k)
	}
	return nil
}

// Render returns the configuration file contents for p with overrides merged
// over the defaults.
func Render(p Params, overrides map[string]string) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	directives, err := Merge(Defaults(p), overrides)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, d := range directives {
		b.WriteString(d.Key)
		if d.Value != "" {
			b.WriteByte(' ')
			b.WriteString(d.Value)
		}
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// Write renders the configuration and writes it atomically to path with
// owner-only permissions.
func Write(path string, p Params, overrides map[string]string) error {
	data, err := Render(p, overrides)
	if err != nil {
		return fmt.Errorf("render server config: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("write server config: %w", err)
	}
	return nil
}

// quote wraps a path in double quotes, escaping backslashes and quotes, so
// that paths with spaces survive the server's config tokenizer.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
