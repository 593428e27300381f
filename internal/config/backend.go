package config

import (
	"fmt"
	"math"
	"strconv"
)

// ConfigBackend persists non-secret routesmith settings between runs:
// UserDefaults on macOS, a JSON file everywhere else. Each accessor matches
// a key type in the key table.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetFloat(key string) (val float64, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetFloat(key string, val float64) error
	Delete(key string) error
}

// secretStore holds the keys marked secret in the key table (API token and
// provider API keys). Load consults it only for secrets the environment left empty.
type secretStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

func parseInt(key, s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, nil
}

func parseFloat(key, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for %s: %w", key, err)
	}
	return f, nil
}

// intValue converts a decoded JSON value to an int.
func intValue(key string, v any) (int, error) {
	switch val := v.(type) {
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), nil
	case string:
		return parseInt(key, val)
	default:
		return 0, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

// floatValue converts a decoded JSON value to a float64.
func floatValue(key string, v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		return parseFloat(key, val)
	default:
		return 0, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

// requireSecretKey rejects keys the key table does not mark secret, so the
// secret store never holds ordinary settings.
func requireSecretKey(key string) error {
	if s, ok := lookup(key); !ok || !s.secret {
		return fmt.Errorf("unknown secret: %q", key)
	}
	return nil
}
