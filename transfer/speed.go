package transfer

import (
	"sync"
	"time"
)

const speedWindow = 5 * time.Second

type sample struct {
	at    time.Time
	total int64
}

// speedometer computes throughput from a short trailing window of byte
// counter samples so the reading reflects current speed, not the average
// over the whole transfer.
type speedometer struct {
	mu      sync.Mutex
	samples []sample
}

func newSpeedometer() speedometer {
	return speedometer{}
}

func (s *speedometer) update(total int64) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample{at: now, total: total})

	cutoff := now.Add(-speedWindow)
	drop := 0
	for drop < len(s.samples)-1 && s.samples[drop].at.Before(cutoff) {
		drop++
	}
	s.samples = s.samples[drop:]
}

func (s *speedometer) bytesPerSecond() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) < 2 {
		return 0
	}

	first := s.samples[0]
	last := s.samples[len(s.samples)-1]

	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return int64(float64(last.total-first.total) / elapsed)
}
