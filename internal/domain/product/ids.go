package product

import (
	"sync/atomic"
	"time"
)

// IDSequence hands out millisecond-timestamp ids that never repeat within a
// process: when the clock has not advanced past the last id, the next id is
// last+1.
type IDSequence struct {
	last atomic.Int64
	now  func() time.Time
}

// NewIDSequence returns a sequence driven by the wall clock.
func NewIDSequence() *IDSequence {
	return &IDSequence{now: time.Now}
}

// Observe raises the floor of the sequence so that ids already in use are
// never handed out again.
func (s *IDSequence) Observe(id int64) {
	for {
		prev := s.last.Load()
		if id <= prev || s.last.CompareAndSwap(prev, id) {
			return
		}
	}
}

// Next returns a fresh id.
func (s *IDSequence) Next() int64 {
	for {
		prev := s.last.Load()
		id := s.now().UnixMilli()
		if id <= prev {
			id = prev + 1
		}
		if s.last.CompareAndSwap(prev, id) {
			return id
		}
	}
}
