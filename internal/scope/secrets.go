package scope

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SecretSource supplies secret values by name. ok is false when the source
// does not know the name; err is reserved for failures of the source itself.
type SecretSource interface {
	Secret(ctx context.Context, name string) (value string, ok bool, err error)
}

// MapSecrets serves secrets from memory.
type MapSecrets map[string]string

func (m MapSecrets) Secret(_ context.Context, name string) (string, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

// EnvSecrets maps a secret name to an environment variable: Prefix followed
// by the upper-cased name, with '-' and '.' turned into '_'.
type EnvSecrets struct {
	Prefix string
	Env    EnvSource
}

func (e EnvSecrets) Secret(_ context.Context, name string) (string, bool, error) {
	env := e.Env
	if env == nil {
		env = OSEnv
	}
	key := e.Prefix + strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(name))
	v, ok := env.LookupEnv(key)
	return v, ok, nil
}

// FileSecrets reads a YAML mapping of name to value. The file is read on
// every lookup so rotated secrets are picked up and nothing stays in memory.
type FileSecrets struct {
	Path string
}

func (f FileSecrets) Secret(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read secrets file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", false, fmt.Errorf("parse secrets file %s: %w", f.Path, err)
	}
	raw, ok := doc[name]
	if !ok || raw == nil {
		return "", false, nil
	}
	switch v := raw.(type) {
	case string:
		return v, true, nil
	case map[string]any, []any:
		return "", false, fmt.Errorf("secret %q is not a scalar", name)
	default:
		return fmt.Sprint(v), true, nil
	}
}

// Chain asks each source in turn and returns the first hit.
type Chain []SecretSource

func (c Chain) Secret(ctx context.Context, name string) (string, bool, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		v, ok, err := src.Secret(ctx, name)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}
