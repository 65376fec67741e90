// Package id provides ULID generation for the browser source.
//
// IDs are lexicographically sortable ULIDs with a type prefix that keeps
// them readable in logs (src_*, conn_*, req_*). Sorting source IDs orders
// sources by creation time.
package id

import (
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// SourceID identifies a browser source
type SourceID string

// ConnectionID identifies a WebSocket connection
type ConnectionID string

// RequestID identifies an API request or trace span
type RequestID string

const (
	SourcePrefix     = "src"
	ConnectionPrefix = "conn"
	RequestPrefix    = "req"
)

const separator = "_"

var ErrMalformed = errors.New("malformed id")

// Generator hands out monotonic ULIDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator drawing from entropy. IDs minted in the
// same millisecond increment monotonically, so they still sort in order.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{
		entropy: ulid.Monotonic(entropy, 0),
		now:     time.Now,
	}
}

// Next mints a new ULID
func (g *Generator) Next() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// Prefixed mints prefix_<ulid>
func (g *Generator) Prefixed(prefix string) string {
	return prefix + separator + g.Next().String()
}

// NewSourceID generates a new source ID
func NewSourceID() SourceID {
	return SourceID(Default().Prefixed(SourcePrefix))
}

// NewConnectionID generates a new connection ID
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().Prefixed(ConnectionPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().Prefixed(RequestPrefix))
}

func (id SourceID) String() string     { return string(id) }
func (id ConnectionID) String() string { return string(id) }
func (id RequestID) String() string    { return string(id) }

// CreatedAt reports when the source ID was minted
func (id SourceID) CreatedAt() (time.Time, error) {
	u, err := Parse(string(id), SourcePrefix)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

// Parse splits prefix_<ulid> and decodes the ULID part
func Parse(s, prefix string) (ulid.ULID, error) {
	rest, ok := strings.CutPrefix(s, prefix+separator)
	if !ok {
		return ulid.ULID{}, ErrMalformed
	}
	u, err := ulid.ParseStrict(rest)
	if err != nil {
		return ulid.ULID{}, errors.Join(ErrMalformed, err)
	}
	return u, nil
}

// IsValidPrefixed checks that s is prefix_<ulid>
func IsValidPrefixed(s, prefix string) bool {
	_, err := Parse(s, prefix)
	return err == nil
}
