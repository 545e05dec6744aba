package resolver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gobeaver/nocloud"
)

// Parse reads a configuration document. Only the first YAML document of
// the stream is used. scope and source are recorded on the result.
func Parse(data []byte, scope, source string) (*nocloud.RemoteConfig, error) {
	var doc map[string]any
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, parseError(source, errors.New("empty document"))
		}
		return nil, parseError(source, err)
	}

	cfg := &nocloud.RemoteConfig{
		Credentials: make(map[string]string, len(doc)),
		Scope:       scope,
		Source:      source,
	}
	for k, v := range doc {
		s, err := scalar(v)
		if err != nil {
			return nil, parseError(source, fmt.Errorf("key %q: %w", k, err))
		}
		switch k {
		case "driver":
			cfg.Driver = strings.ToLower(strings.TrimSpace(s))
		case "prefix":
			cfg.Prefix = strings.Trim(s, "/")
		default:
			cfg.Credentials[k] = s
		}
	}

	if cfg.Driver == "" {
		return nil, parseError(source, errors.New("missing driver"))
	}
	return cfg, nil
}

func scalar(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("expected a scalar, got %T", v)
	}
}

func parseError(source string, err error) error {
	return &nocloud.PathError{Op: "parse", Path: source, Err: fmt.Errorf("%w: %w", nocloud.ErrConfigParse, err)}
}
