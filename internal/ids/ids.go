package ids

import (
	mathrand "math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Sequence hands out strictly increasing identifiers of the form <prefix>-<n>, starting at 1.
type Sequence struct {
	prefix string
	n      atomic.Uint64
}

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Next() string {
	return s.prefix + "-" + strconv.FormatUint(s.n.Add(1), 10)
}

// Last returns the most recently issued counter value, 0 when none was issued.
func (s *Sequence) Last() uint64 { return s.n.Load() }
