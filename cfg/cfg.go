package cfg

import (
	"os"
	"strconv"
	"time"
)

// GetEnvDefault is a helper function to retrieve an env variable value OR return a default value
func GetEnvDefault(name, dfault string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return dfault
}

// GetEnvInt is GetEnvDefault for integer values; unparseable values fall
// back to the default.
func GetEnvInt(name string, dfault int) int {
	val := os.Getenv(name)
	if val == "" {
		return dfault
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return dfault
	}
	return n
}

// GetEnvDuration is GetEnvDefault for durations ("200ms", "30s", ...).
func GetEnvDuration(name string, dfault time.Duration) time.Duration {
	val := os.Getenv(name)
	if val == "" {
		return dfault
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return dfault
	}
	return d
}
