package clocksync

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// EWMA smoothing factor. Higher weights recent samples more.
	alpha = 0.2

	resyncBurst = 5
)

// Stats is a read-only view of one connection's timing quality. Offsets
// are signed: positive means the peer's clock runs ahead of ours.
type Stats struct {
	RTTMs    float64 `json:"rtt_ms"`
	OffsetMs float64 `json:"offset_ms"`
	JitterMs float64 `json:"jitter_ms"`
	DriftPPM float64 `json:"drift_ppm"`
	Samples  int     `json:"samples"`
}

// Sampler maintains smoothed timing stats for one peer connection from
// ping round trips. Consumers read it for relative timestamp display
// only; nothing in arbitration depends on its values.
type Sampler struct {
	clock clock.Clock

	mu          sync.Mutex
	rtt         float64
	offset      float64
	jitter      float64
	drift       float64
	samples     int
	firstSample time.Time
	firstOffset float64
	pending     int
}

func NewSampler(clk clock.Clock) *Sampler {
	if clk == nil {
		clk = clock.New()
	}
	return &Sampler{clock: clk}
}

// AddSample folds in one ping round trip. remoteTS is the peer's clock
// reading carried in the pong, taken to hold at the round-trip midpoint.
func (s *Sampler) AddSample(rtt time.Duration, remoteTS, sentAt time.Time) {
	rttMs := float64(rtt) / float64(time.Millisecond)
	midpoint := sentAt.Add(rtt / 2)
	offsetMs := float64(remoteTS.Sub(midpoint)) / float64(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.samples == 0 {
		s.rtt = rttMs
		s.offset = offsetMs
		s.firstSample = now
		s.firstOffset = offsetMs
	} else {
		deviation := rttMs - s.rtt
		if deviation < 0 {
			deviation = -deviation
		}
		s.jitter = alpha*deviation + (1-alpha)*s.jitter
		s.rtt = alpha*rttMs + (1-alpha)*s.rtt
		s.offset = alpha*offsetMs + (1-alpha)*s.offset

		elapsed := now.Sub(s.firstSample)
		if elapsed > time.Second {
			// Drift in parts per million over the observation window.
			s.drift = (offsetMs - s.firstOffset) * float64(time.Millisecond) / float64(elapsed) * 1e6
		}
	}
	s.samples++
	if s.pending > 0 {
		s.pending--
	}
}

func (s *Sampler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		RTTMs:    s.rtt,
		OffsetMs: s.offset,
		JitterMs: s.jitter,
		DriftPPM: s.drift,
		Samples:  s.samples,
	}
}

// ForceBatchResync asks the transport for a burst of samples. The
// transport drains the budget via PendingSamples.
func (s *Sampler) ForceBatchResync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = resyncBurst
}

// PendingSamples reports how many extra pings the transport should send
// ahead of its regular cadence.
func (s *Sampler) PendingSamples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
