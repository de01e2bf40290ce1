package utils

import (
	"os"
	"strconv"
	"strings"
)

// LookupEnvInt reports whether key is set. A set but unparsable value is
// returned as an error rather than silently ignored.
func LookupEnvInt(key string) (int, bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, false, nil
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, true, err
	}

	return value, true, nil
}

func LookupEnvBool(key string) (bool, bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return false, false, nil
	}

	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, true, err
	}

	return value, true, nil
}
