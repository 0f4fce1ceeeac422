// Package requestid generates the opaque identifiers the HTTP
// middleware attaches to requests and the audit log records alongside
// plan events.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// New returns a 32-character hex identifier from 16 random bytes.
func New() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
