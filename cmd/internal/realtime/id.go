package realtime

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewEntryID returns a ULID for a transcript entry.
// ULIDs sort by creation time, which keeps entry ids aligned with arrival order in logs.
func NewEntryID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		// crypto/rand failing is not recoverable in a meaningful way; fall back to a
		// time-only id so ordering still holds.
		return ulid.MustNew(ulid.Timestamp(now), nil).String()
	}
	return id.String()
}
