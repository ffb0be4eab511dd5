// Package id provides unique identifier generation for analyses.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Prefix starts every generated analysis ID.
const Prefix = "ana-"

// Generate creates a new unique analysis ID.
// Format: ana-<timestamp>-<random>
// Example: ana-1701432000-a1b2c3d4e5f6
func Generate() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 6)
	if _, err := rand.Read(random); err != nil {
		// Fall back to nanoseconds so IDs stay unique within a second.
		return fmt.Sprintf("%s%d-%x", Prefix, timestamp, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s%d-%s", Prefix, timestamp, hex.EncodeToString(random))
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	var ts int64
	var suffix string
	n, err := fmt.Sscanf(s, Prefix+"%d-%s", &ts, &suffix)
	return err == nil && n == 2 && ts > 0 && suffix != ""
}
