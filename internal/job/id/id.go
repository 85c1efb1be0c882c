// Package id generates unique identifiers for transcription jobs.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Generate creates a new unique job ID of the form
// job-<unix timestamp>-<random hex>, e.g. job-1701432000-a1b2c3d4. The
// timestamp prefix keeps IDs roughly sortable by creation time in logs.
func Generate() string {
	timestamp := time.Now().Unix()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Timestamp-only fallback if crypto/rand fails
		return fmt.Sprintf("job-%d", timestamp)
	}
	return fmt.Sprintf("job-%d-%s", timestamp, hex.EncodeToString(random))
}
