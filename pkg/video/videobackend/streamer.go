package videobackend

import (
	"context"
	"sync"
	"time"

	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const captureRetryDelay = 10 * time.Millisecond

// Captured is one raw capture before it is handed to the pool.
type Captured struct {
	Width, Height int
	Format        videoframe.PixelFormat
	Planes        []videoframe.Plane
}

// CaptureFunc blocks until the sensor produces its next frame or ctx ends.
type CaptureFunc func(ctx context.Context) (Captured, error)

// Streamer runs the two goroutines every device needs: one capturing
// into the pool at the sensor's own pace, one delivering ready
// notifications to the consumer. The delivery goroutine is the only
// caller of notify so it is never re-entered.
type Streamer struct {
	title        string
	pool         *BufferPool
	capture      CaptureFunc
	stallTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	seq     uint64
}

func NewStreamer(title string, pool *BufferPool, stallTimeout time.Duration, capture CaptureFunc) *Streamer {
	return &Streamer{
		title:        title,
		pool:         pool,
		capture:      capture,
		stallTimeout: stallTimeout,
	}
}

func (s *Streamer) Start(notify func(), fail func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return xerror.Errorf("device [%s] is already streaming", s.title)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(2)
	go s.captureLoop(ctx, fail)
	go s.deliverLoop(ctx, notify)
	return nil
}

func (s *Streamer) captureLoop(ctx context.Context, fail func(error)) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c, err := s.capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Unable to capture frame from device [%s]: %v", s.title, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(captureRetryDelay):
			}
			continue
		}

		s.seq++
		buf := s.pool.NewBuffer(s.seq, timeNow(), c.Width, c.Height, c.Format, c.Planes)
		if s.pool.Push(buf) {
			continue
		}

		if stalled := s.pool.StalledFor(); s.stallTimeout > 0 && stalled >= s.stallTimeout {
			err := xerror.Errorf(
				"device [%s] held %d buffers for %s: %w",
				s.title, s.pool.Outstanding(), stalled, videoframe.ErrResourceStall,
			)
			log.Error(err.Error())
			if fail != nil {
				fail(err)
			}
			return
		}
	}
}

func (s *Streamer) deliverLoop(ctx context.Context, notify func()) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pool.Ready():
			notify()
		}
	}
}

// Stop cancels both goroutines and waits for them, including any
// notification still running.
func (s *Streamer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Drain()
}
