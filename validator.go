package throttler

import (
	"fmt"
)

// maxKeyLen is the longest accepted key, in bytes.
const maxKeyLen = 256

// allowedCharsArray is a precomputed boolean array for O(1) character validation
var allowedCharsArray [128]bool

func init() {
	// Initialize all characters as not allowed
	for i := 0; i < 128; i++ {
		allowedCharsArray[i] = false
	}

	// Set allowed characters to true
	for _, c := range "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_.-" {
		allowedCharsArray[c] = true
	}
}

// ValidateKey validates that a limit key meets the requirements:
// - Between 1 and 256 bytes long
// - Contains only alphanumeric ASCII characters, underscore (_), period (.), and hyphen (-)
//
// Callers that need richer identifiers (colons, slashes, emails) should
// encode them into this alphabet before handing the key to the engine.
func ValidateKey(key string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}

	if len(key) > maxKeyLen {
		return fmt.Errorf("%w: key cannot exceed %d bytes, got %d bytes", ErrInvalidKey, maxKeyLen, len(key))
	}

	const hint = "Only alphanumeric ASCII, underscore (_), period (.), and hyphen (-) are allowed"

	for i, r := range key {
		// Check if character is within ASCII range and allowed
		if r >= 128 || !allowedCharsArray[r] {
			return fmt.Errorf("%w: key contains invalid character '%c' at position %d. %s", ErrInvalidKey, r, i, hint)
		}
	}

	return nil
}
