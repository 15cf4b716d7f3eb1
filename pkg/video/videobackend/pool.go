package videobackend

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tauraamui/edgecam/pkg/video/videoframe"
)

// BufferPool tracks the buffers a device has in flight. At most max
// buffers are queued or acquired at once. When the budget is used up a
// newer capture evicts the oldest queued one, and when nothing is queued
// because the consumer holds every buffer, new captures are discarded and
// the pool counts as stalled until a buffer comes back.
type BufferPool struct {
	mu           sync.Mutex
	max          int
	queued       []*videoframe.SensorBuffer
	outstanding  int
	stalledSince time.Time
	dropped      atomic.Uint64
	ready        chan struct{}
}

var timeNow = func() time.Time {
	return time.Now()
}

func NewBufferPool(max int) *BufferPool {
	if max < 1 {
		max = 1
	}
	return &BufferPool{
		max:   max,
		ready: make(chan struct{}, 1),
	}
}

// NewBuffer wraps captured planes in a buffer whose release returns it
// to this pool.
func (p *BufferPool) NewBuffer(
	seq uint64, ts time.Time, w, h int, format videoframe.PixelFormat, planes []videoframe.Plane,
) *videoframe.SensorBuffer {
	return videoframe.NewSensorBuffer(seq, ts, w, h, format, planes, p.release)
}

// Push queues a captured buffer and raises the ready signal, it reports
// false when the buffer had to be discarded because the pool is exhausted.
func (p *BufferPool) Push(buf *videoframe.SensorBuffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queued)+p.outstanding >= p.max {
		if len(p.queued) == 0 {
			p.dropped.Add(1)
			if p.stalledSince.IsZero() {
				p.stalledSince = timeNow()
			}
			return false
		}
		p.queued[0] = nil
		p.queued = p.queued[1:]
		p.dropped.Add(1)
	}

	p.queued = append(p.queued, buf)
	select {
	case p.ready <- struct{}{}:
	default:
	}
	return true
}

// AcquireLatest returns the newest queued buffer, or nil when nothing is
// queued. Older queued buffers are dropped without being reported.
func (p *BufferPool) AcquireLatest() *videoframe.SensorBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.queued)
	if n == 0 {
		return nil
	}
	latest := p.queued[n-1]
	if n > 1 {
		p.dropped.Add(uint64(n - 1))
	}
	p.queued = p.queued[:0]
	p.outstanding++
	return latest
}

func (p *BufferPool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outstanding > 0 {
		p.outstanding--
	}
	p.stalledSince = time.Time{}
}

// Ready fires at least once after each accepted Push, notifications
// arriving while one is already pending are coalesced.
func (p *BufferPool) Ready() <-chan struct{} {
	return p.ready
}

// StalledFor reports how long the pool has been unable to accept captures.
func (p *BufferPool) StalledFor() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stalledSince.IsZero() {
		return 0
	}
	return timeNow().Sub(p.stalledSince)
}

func (p *BufferPool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

func (p *BufferPool) Dropped() uint64 {
	return p.dropped.Load()
}

// Drain discards anything still queued.
func (p *BufferPool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropped.Add(uint64(len(p.queued)))
	p.queued = nil
	select {
	case <-p.ready:
	default:
	}
}
