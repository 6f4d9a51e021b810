// Package util holds small helpers shared across the service.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID returns a random identifier, optionally namespaced by prefix.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewTimestampedID returns an identifier that sorts roughly by creation time.
// Used for curriculum records so listings stay readable in the raw store.
func NewTimestampedID(prefix string, now time.Time) string {
	bytes := make([]byte, 5)
	_, _ = rand.Read(bytes)
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), hex.EncodeToString(bytes))
}
