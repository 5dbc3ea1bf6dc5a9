package devserver

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// newHexID returns 2*n random hex chars, or "" if the system RNG fails.
func newHexID(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// newExchangeID returns a 24-char hex id, the shape clients see for saved exchanges.
func newExchangeID() string { return newHexID(12) }

// newSessionID identifies one websocket session in logs and room membership.
func newSessionID() string { return newHexID(10) }

// newSnippetID returns a random UUID string.
func newSnippetID() string { return uuid.NewString() }
