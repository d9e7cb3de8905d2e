//go:build !darwin

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// xdgDir returns $env/wcdata, falling back to ~/<home>/wcdata.
func xdgDir(env, home string) string {
	dir := os.Getenv(env)
	if dir == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return "wcdata-data"
		}
		dir = filepath.Join(h, home)
	}
	return filepath.Join(dir, "wcdata")
}

func defaultDataDir() string { return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")) }

func configFile() string { return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "config.json") }

func secretsFile() string { return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "secrets.json") }

func secretHint(name string) string {
	return fmt.Sprintf(" or %q in %s", name, secretsFile())
}

// readJSONFile decodes a flat JSON object. A missing file is an empty object.
func readJSONFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// fileBackend keeps settings in a JSON object keyed by dotted key names.
// The file is read on every lookup so `config set` from another process is
// picked up.
type fileBackend struct {
	mu   sync.Mutex
	path string
}

func platformBackend() Backend { return &fileBackend{path: configFile()} }

func (b *fileBackend) lookup(key string) (any, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := readJSONFile(b.path)
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func (b *fileBackend) update(fn func(m map[string]any)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, err := readJSONFile(b.path)
	if err != nil {
		return err
	}
	fn(m)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(b.path, append(data, '\n'), 0o600)
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok, err := b.lookup(key)
	if !ok || err != nil {
		return "", ok, err
	}
	if s, isString := v.(string); isString {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok, err := b.lookup(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	var s string
	switch v := v.(type) {
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return 0, true, fmt.Errorf("%s: want an integer, got %T", key, v)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s is not an integer: %w", key, err)
	}
	return n, true, nil
}

func (b *fileBackend) SetString(key, val string) error {
	return b.update(func(m map[string]any) { m[key] = val })
}

func (b *fileBackend) SetInt(key string, val int) error {
	return b.update(func(m map[string]any) { m[key] = val })
}

func (b *fileBackend) Delete(key string) error {
	return b.update(func(m map[string]any) { delete(m, key) })
}

// fileSecrets reads secrets from a flat JSON object next to the config file,
// e.g. {"consumer_secret": "cs_..."}.
type fileSecrets struct {
	path string
}

func platformSecrets() Secrets { return fileSecrets{path: secretsFile()} }

func (s fileSecrets) Secret(name string) (string, error) {
	m, err := readJSONFile(s.path)
	if err != nil {
		return "", err
	}
	v, ok := m[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s in %s", ErrSecretNotFound, name, s.path)
	}
	return v, nil
}
