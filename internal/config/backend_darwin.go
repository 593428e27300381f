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

const defaultsDomain = "com.routesmith.app"

func defaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "Library", "Application Support", "routesmith")
	}
	return "routesmith-data"
}

func secretHint(key string) string {
	return fmt.Sprintf(" or run `routesmith config set-secret %s` (stored in the login Keychain, service %s)", key, secretService)
}

// userDefaults reads and writes the com.routesmith.app defaults domain
// through the defaults(1) CLI.
type userDefaults struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return userDefaults{domain: defaultsDomain}
}

func (u userDefaults) read(key string) (string, bool, error) {
	out, err := exec.Command("defaults", "read", u.domain, key).CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		// Exit status 1 means the key does not exist.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("defaults read %s %s: %w: %s", u.domain, key, err, s)
	}
	return s, true, nil
}

func (u userDefaults) write(key, typeFlag, val string) error {
	out, err := exec.Command("defaults", "write", u.domain, key, typeFlag, val).CombinedOutput()
	if err != nil {
		return fmt.Errorf("defaults write %s %s: %w: %s", u.domain, key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (u userDefaults) GetString(key string) (string, bool, error) {
	return u.read(key)
}

func (u userDefaults) GetInt(key string) (int, bool, error) {
	s, ok, err := u.read(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := parseInt(key, s)
	return i, true, err
}

func (u userDefaults) GetFloat(key string) (float64, bool, error) {
	s, ok, err := u.read(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	f, err := parseFloat(key, s)
	return f, true, err
}

func (u userDefaults) SetString(key, val string) error {
	return u.write(key, "-string", val)
}

func (u userDefaults) SetInt(key string, val int) error {
	return u.write(key, "-int", strconv.Itoa(val))
}

func (u userDefaults) SetFloat(key string, val float64) error {
	return u.write(key, "-float", strconv.FormatFloat(val, 'g', -1, 64))
}

func (u userDefaults) Delete(key string) error {
	return exec.Command("defaults", "delete", u.domain, key).Run()
}
