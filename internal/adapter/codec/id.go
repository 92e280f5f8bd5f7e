package codec

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idSource mints envelope ids and timestamps for one session.
// Ids are ULIDs drawn from a single monotonic entropy source, so ids minted
// within the same millisecond are still distinct and sort in mint order.
type idSource struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	lastMS  int64
}

func newIDSource(now func() time.Time) *idSource {
	t := now()
	return &idSource{
		now:     now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0),
	}
}

// next returns a fresh id and the envelope timestamp in ms. The timestamp never
// goes backwards even if the wall clock does.
func (s *idSource) next() (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.now().UnixMilli()
	if ms < s.lastMS {
		ms = s.lastMS
	}
	s.lastMS = ms

	id, err := ulid.New(uint64(ms), s.entropy)
	if err != nil {
		return "", 0, err
	}
	return id.String(), ms, nil
}
