package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv returns the trimmed value of key; blank values count as unset.
func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func getEnv(key, defaultVal string) string {
	if value, ok := lookupEnv(key); ok {
		return value
	}
	return defaultVal
}

// parseEnv converts the value of key with parse, falling back to defaultVal
// when the variable is unset or malformed.
func parseEnv[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	value, ok := lookupEnv(key)
	if !ok {
		return defaultVal
	}
	v, err := parse(value)
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvAsInt(key string, defaultVal int) int {
	return parseEnv(key, defaultVal, strconv.Atoi)
}

func getEnvAsBool(key string, defaultVal bool) bool {
	return parseEnv(key, defaultVal, strconv.ParseBool)
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	return parseEnv(key, defaultVal, time.ParseDuration)
}

func getEnvAsStringSlice(key string, defaults []string) []string {
	value, ok := lookupEnv(key)
	if !ok {
		return defaults
	}
	parts := strings.Split(value, ",")
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return defaults
	}
	return filtered
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	return parseEnv(key, defaultVal, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}
