// Package secret validates the shared authentication token on inbound requests.
package secret

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Validate reports whether provided matches expected. Both values are hashed
// before comparison so the check runs in constant time and does not leak
// length information beyond the fixed-size digest compare. An empty expected
// value (unconfigured secret) always denies.
func Validate(provided, expected string) bool {
	if expected == "" {
		return false
	}
	ph := sha256.Sum256([]byte(provided))
	eh := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(ph[:], eh[:]) == 1
}
