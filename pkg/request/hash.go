package request

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// MaxStabilityHash is the largest generated hash value.
const MaxStabilityHash = 1_000_000

// StabilityHash pins the API's randomised ordering so consecutive pages of
// one filter set neither repeat nor skip profiles. It must stay constant for
// the whole session; a new hash redefines what "page N" contains.
type StabilityHash int64

// NewStabilityHash picks a session hash in [0, MaxStabilityHash].
func NewStabilityHash() StabilityHash {
	return StabilityHash(rand.Int64N(MaxStabilityHash + 1))
}

// ParseStabilityHash parses a caller supplied hash, e.g. one carried over
// in a shared link.
func ParseStabilityHash(s string) (StabilityHash, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stability hash %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("stability hash must be >= 0 (got %d)", n)
	}
	return StabilityHash(n), nil
}

// String returns the decimal form used on the wire.
func (h StabilityHash) String() string {
	return strconv.FormatInt(int64(h), 10)
}
