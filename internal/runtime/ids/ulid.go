package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// The publisher uses it as notification id.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// LocalInstanceID returns an identity for runs outside a container task. The
// result is a valid queue name: lowercase letters, digits and dashes only.
func LocalInstanceID() string {
	return "local-" + strings.ToLower(CreateULID())
}
