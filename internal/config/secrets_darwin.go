//go:build darwin

package config

import (
	"os/exec"
	"strings"
)

func newSecretStore() secretStore {
	return keychainSecrets{service: secretService}
}

// keychainSecrets keeps secrets as generic passwords in the login keychain,
// one account per config key.
type keychainSecrets struct {
	service string
}

func (k keychainSecrets) Get(key string) (string, error) {
	if err := requireSecretKey(key); err != nil {
		return "", err
	}
	out, err := exec.Command("security", "find-generic-password", "-s", k.service, "-a", key, "-w").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (k keychainSecrets) Set(key, value string) error {
	if err := requireSecretKey(key); err != nil {
		return err
	}
	return exec.Command("security", "add-generic-password", "-U", "-s", k.service, "-a", key, "-w", value).Run()
}
