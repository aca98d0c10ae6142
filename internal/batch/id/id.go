// Package id provides unique identifier generation for batches.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Prefix starts every batch ID.
const Prefix = "batch-"

// Generate creates a new unique batch ID that sorts by creation time.
// Format: batch-<UTC timestamp>-<random>
// Example: batch-20261018T101500-a1b2c3d4
func Generate() string {
	return generate(time.Now())
}

func generate(now time.Time) string {
	stamp := now.UTC().Format("20060102T150405")
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		return fmt.Sprintf("%s%s-%d", Prefix, stamp, now.UnixNano()%1e8)
	}
	return Prefix + stamp + "-" + hex.EncodeToString(random)
}
