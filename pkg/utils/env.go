package utils

import "os"

// ParseWithFallback reads an environment variable, falling back when it
// is unset or empty.
func ParseWithFallback(envName string, fallback string) string {
	if value := os.Getenv(envName); value != "" {
		return value
	}

	return fallback
}
