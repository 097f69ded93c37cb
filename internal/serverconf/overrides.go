package serverconf

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// LoadOverrides reads server directives from a TOML file. Top-level keys
// become directive keys. Strings are used as-is, numbers and booleans are
// formatted ("yes"/"no" for booleans), and arrays become repeated
// directives:
//
//	maxmemory = "64mb"
//	appendonly = true
//	save = ["900 1", "60 10000"]
func LoadOverrides(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is caller-provided config
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}

	raw := make(map[string]any)
	dec := toml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := directiveValue(v)
		if err != nil {
			return nil, fmt.Errorf("override %s: %w", k, err)
		}
		if err := checkOverrideKey(k); err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

func directiveValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		if t {
			return "yes", nil
		}
		return "no", nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case []any:
		var buf bytes.Buffer
		for i, item := range t {
			s, err := directiveValue(item)
			if err != nil {
				return "", err
			}
			if i > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(s)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: unsupported value type %T", ErrInvalidOverride, v)
	}
}
