package telemetry

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const defaultStatsWindow = 600

type Summary struct {
	Frames   uint64
	Failures uint64
	LastMs   float64
	MeanMs   float64
	StdDevMs float64
	P50Ms    float64
	P95Ms    float64
}

func (s Summary) String() string {
	return fmt.Sprintf(
		"frames: %d, failures: %d, frame time mean %.1f ms (sd %.1f), p50 %.1f ms, p95 %.1f ms",
		s.Frames, s.Failures, s.MeanMs, s.StdDevMs, s.P50Ms, s.P95Ms,
	)
}

// Stats keeps the most recent frame times in a fixed window.
type Stats struct {
	mu       sync.Mutex
	window   []float64
	next     int
	full     bool
	frames   uint64
	failures uint64
	last     float64
}

func NewStats(window int) *Stats {
	if window < 1 {
		window = defaultStatsWindow
	}
	return &Stats{window: make([]float64, window)}
}

func (s *Stats) Observe(t Timing) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	if t.Err != nil {
		s.failures++
	}
	s.last = t.Millis()
	s.window[s.next] = s.last
	s.next = (s.next + 1) % len(s.window)
	if s.next == 0 {
		s.full = true
	}
}

// Samples returns the frame times currently in the window, oldest first.
func (s *Stats) Samples() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples()
}

func (s *Stats) samples() []float64 {
	if !s.full {
		return append([]float64{}, s.window[:s.next]...)
	}
	out := make([]float64, 0, len(s.window))
	out = append(out, s.window[s.next:]...)
	return append(out, s.window[:s.next]...)
}

func (s *Stats) Summary() Summary {
	s.mu.Lock()
	samples := s.samples()
	sum := Summary{Frames: s.frames, Failures: s.failures, LastMs: s.last}
	s.mu.Unlock()

	if len(samples) == 0 {
		return sum
	}

	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) < 2 {
		std = 0
	}
	sort.Float64s(samples)
	sum.MeanMs = mean
	sum.StdDevMs = std
	sum.P50Ms = stat.Quantile(0.5, stat.Empirical, samples, nil)
	sum.P95Ms = stat.Quantile(0.95, stat.Empirical, samples, nil)
	return sum
}
