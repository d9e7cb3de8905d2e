//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultsDomain  = "com.wcdata.app"
	keychainService = "wcdata"
)

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", "wcdata")
	}
	return "wcdata-data"
}

func secretHint(name string) string {
	return fmt.Sprintf(" or macOS Keychain (service: %s, account: %s)", keychainService, name)
}

// defaultsBackend keeps settings in UserDefaults through the defaults CLI.
type defaultsBackend struct{}

func platformBackend() Backend { return defaultsBackend{} }

func runDefaults(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (defaultsBackend) GetString(key string) (string, bool, error) {
	out, err := runDefaults("read", defaultsDomain, key)
	if err != nil {
		// defaults exits with 1 for a key that was never written.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s: %w (%s)", key, err, out)
	}
	return out, true, nil
}

func (b defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s is not an integer: %w", key, err)
	}
	return n, true, nil
}

func (defaultsBackend) SetString(key, val string) error {
	_, err := runDefaults("write", defaultsDomain, key, "-string", val)
	return err
}

func (defaultsBackend) SetInt(key string, val int) error {
	_, err := runDefaults("write", defaultsDomain, key, "-int", strconv.Itoa(val))
	return err
}

func (defaultsBackend) Delete(key string) error {
	_, err := runDefaults("delete", defaultsDomain, key)
	return err
}

// keychainSecrets reads generic passwords from the login keychain.
type keychainSecrets struct{}

func platformSecrets() Secrets { return keychainSecrets{} }

func (keychainSecrets) Secret(name string) (string, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", keychainService, "-a", name, "-w").Output()
	if err != nil {
		return "", fmt.Errorf("%w: keychain %s/%s", ErrSecretNotFound, keychainService, name)
	}
	return strings.TrimSpace(string(out)), nil
}
