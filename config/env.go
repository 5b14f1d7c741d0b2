package config

import (
	"fmt"
	"os"
	"strconv"
)

// EnvString returns the value of an environment variable and whether it was
// set to a non-empty value.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment variable. The boolean reports whether
// the variable was set; a set but unparsable value is an error.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return parsed, true, nil
}
