//go:build !darwin

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func secretsFilePath() string {
	dir := xdgDir("XDG_DATA_HOME", ".local", "share")
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "routesmith", "secrets.json")
}

func newSecretStore() secretStore {
	return fileSecrets{path: secretsFilePath()}
}

// fileSecrets keeps secrets in a 0600 JSON file keyed by config key:
// {"firecrawl.api_key": "fc-..."}.
type fileSecrets struct {
	path string
}

func (f fileSecrets) load() (map[string]string, error) {
	secrets := map[string]string{}
	if err := readJSONFile(f.path, &secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

func (f fileSecrets) Get(key string) (string, error) {
	if err := requireSecretKey(key); err != nil {
		return "", err
	}
	if info, err := os.Stat(f.path); err == nil && info.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "[WARN] secrets file %s is readable by other users (mode %v); run chmod 600 on it.\n", f.path, info.Mode().Perm())
	}
	secrets, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("secret %q not found in %s", key, f.path)
	}
	return strings.TrimSpace(v), nil
}

func (f fileSecrets) Set(key, value string) error {
	if err := requireSecretKey(key); err != nil {
		return err
	}
	secrets, err := f.load()
	if err != nil {
		return err
	}
	secrets[key] = value
	return writeJSONFile(f.path, secrets)
}
