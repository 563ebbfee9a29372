package reporter

import (
	"math"
	"strconv"
	"sync/atomic"
)

// Snapshot keeps the last reported estimate so that other goroutines, such
// as an HTTP handler, can read it.
type Snapshot struct {
	bits atomic.Uint64
}

func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

func (s *Snapshot) Report(rate float64) error {
	s.bits.Store(math.Float64bits(rate))
	return nil
}

func (s *Snapshot) Rate() float64 {
	return math.Float64frombits(s.bits.Load())
}

func (s *Snapshot) String() string {
	return strconv.FormatFloat(s.Rate(), 'f', 2, 64)
}
