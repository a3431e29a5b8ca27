// Package env reads process environment variables with defaults. The typed
// configuration lives in pkg/config; this helper covers the few lookups that
// happen before config is loaded, such as picking the log format.
package env

import "os"

// Get returns the variable's value, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
