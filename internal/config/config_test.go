package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// memSecrets is an in-memory Secrets.
type memSecrets map[string]string

func (m memSecrets) Secret(name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

// memBackend is an in-memory Backend.
type memBackend struct {
	data map[string]any
}

func newMemBackend(kv map[string]any) *memBackend {
	if kv == nil {
		kv = map[string]any{}
	}
	return &memBackend{data: kv}
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (b *memBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *memBackend) Delete(key string) error          { delete(b.data, key); return nil }

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMemBackend(nil), memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:4000" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("API.Timeout = %v, want 30s", cfg.API.Timeout)
	}
	if cfg.API.MaxRetries != 3 {
		t.Errorf("API.MaxRetries = %d, want 3", cfg.API.MaxRetries)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Warm.Interval != 5*time.Minute || cfg.Warm.Concurrency != 4 {
		t.Errorf("Warm = %+v", cfg.Warm)
	}
}

// TestBackendValues verifies that all typed fields are read from the backend.
func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMemBackend(map[string]any{
		"api.base_url":     "https://shop.example/wp-json",
		"api.timeout":      "5s",
		"api.max_retries":  1,
		"api.resources":    "products,orders",
		"server.port":      5000,
		"storage.data_dir": "/tmp/wcdata-test",
		"log.level":        "debug",
		"warm.interval":    "1m",
		"warm.concurrency": 2,
		"warm.targets":     "products?status=publish,orders",
	})
	cfg, err := loadWith(b, memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.BaseURL != "https://shop.example/wp-json" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.API.MaxRetries != 1 {
		t.Errorf("API.MaxRetries = %d", cfg.API.MaxRetries)
	}
	if cfg.API.Resources != "products,orders" {
		t.Errorf("API.Resources = %q", cfg.API.Resources)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/wcdata-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Warm.Interval != time.Minute || cfg.Warm.Concurrency != 2 {
		t.Errorf("Warm = %+v", cfg.Warm)
	}
	if cfg.Warm.Targets != "products?status=publish,orders" {
		t.Errorf("Warm.Targets = %q", cfg.Warm.Targets)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("WCDATA_SERVER_PORT", "6000")
	t.Setenv("WCDATA_API_TIMEOUT", "2s")
	t.Setenv("WCDATA_API_CONSUMER_KEY", "ck_env")
	t.Setenv("WCDATA_API_CONSUMER_SECRET", "cs_env")

	b := newMemBackend(map[string]any{"server.port": 5000, "api.consumer_key": "ck_file"})
	cfg, err := loadWith(b, memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.API.Timeout != 2*time.Second {
		t.Errorf("API.Timeout = %v, want 2s", cfg.API.Timeout)
	}
	if cfg.API.ConsumerKey != "ck_env" || cfg.API.ConsumerSecret != "cs_env" {
		t.Errorf("credentials = %q/%q", cfg.API.ConsumerKey, cfg.API.ConsumerSecret)
	}
}

// TestSecretsIgnoredInBackend verifies secrets are never read from the plain backend.
func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)

	b := newMemBackend(map[string]any{"server.token": "leaked"})
	cfg, err := loadWith(b, memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Token != "" {
		t.Errorf("Server.Token = %q, want empty", cfg.Server.Token)
	}
}

// TestMissingConsumerSecret verifies a clear error when a key has no secret anywhere.
func TestMissingConsumerSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("WCDATA_API_CONSUMER_KEY", "ck_1")

	_, err := loadWith(newMemBackend(nil), memSecrets{})
	if err == nil {
		t.Fatal("expected error for missing consumer secret, got nil")
	}
	if want := "missing required config"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err.Error(), want)
	}
}

// TestSecretsFallback verifies the secret store is consulted for secrets missing from env.
func TestSecretsFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("WCDATA_API_CONSUMER_KEY", "ck_1")

	sec := memSecrets{
		"consumer_secret": "keychain-secret\n",
		"server_token":    "keychain-token",
	}
	cfg, err := loadWith(newMemBackend(nil), sec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.ConsumerSecret != "keychain-secret" {
		t.Errorf("ConsumerSecret = %q", cfg.API.ConsumerSecret)
	}
	if cfg.Server.Token != "keychain-token" {
		t.Errorf("Server.Token = %q", cfg.Server.Token)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]map[string]any{
		"relative url":    {"api.base_url": "shop.example"},
		"bad scheme":      {"api.base_url": "ftp://shop.example"},
		"bad log level":   {"log.level": "loud"},
		"zero concurrent": {"warm.concurrency": 0},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			if _, err := loadWith(newMemBackend(kv), memSecrets{}); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBadDurationKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("WCDATA_WARM_INTERVAL", "soon")

	cfg, err := loadWith(newMemBackend(nil), memSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Warm.Interval != 5*time.Minute {
		t.Errorf("Warm.Interval = %v, want default", cfg.Warm.Interval)
	}
}

func TestSetKey(t *testing.T) {
	b := newMemBackend(nil)

	if err := setKey(b, "server.port", "4100"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if b.data["server.port"] != 4100 {
		t.Errorf("server.port = %v", b.data["server.port"])
	}
	if err := setKey(b, "warm.interval", "30s"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "warm.interval", "often"); err == nil {
		t.Error("expected error for bad duration")
	}
	if err := setKey(b, "server.port", "four"); err == nil {
		t.Error("expected error for bad integer")
	}
	if err := setKey(b, "api.consumer_secret", "x"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.API.ConsumerSecret = "cs_hidden"
	for _, info := range ShowAll(cfg) {
		if info.Value == "cs_hidden" {
			t.Errorf("secret shown under %s", info.Key)
		}
	}
	if len(ShowAll(cfg)) != len(ValidKeys()) {
		t.Errorf("ShowAll and ValidKeys disagree")
	}
}

func TestLoadDotEnv(t *testing.T) {
	const name = "WCDATA_DOTENV_TEST"
	t.Cleanup(func() { os.Unsetenv(name) })

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(name+"=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv(name); got != "from-file" {
		t.Errorf("%s = %q", name, got)
	}

	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}
