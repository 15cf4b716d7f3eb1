package telemetry

import (
	"context"
	"sync/atomic"

	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/process"
)

const defaultReportBuffer = 64

// Reporter hands timings from the acquisition goroutine over to its own
// goroutine, which fans them out to the observers. Observe never blocks,
// a timing that finds the buffer full is counted and dropped.
type Reporter struct {
	timings   chan Timing
	observers []Observer
	dropped   atomic.Uint64
	reported  atomic.Uint64
}

func NewReporter(buffer int, observers ...Observer) *Reporter {
	if buffer < 1 {
		buffer = defaultReportBuffer
	}
	return &Reporter{
		timings:   make(chan Timing, buffer),
		observers: observers,
	}
}

func (r *Reporter) Observe(t Timing) {
	select {
	case r.timings <- t:
	default:
		r.dropped.Add(1)
		log.Debug("Timing report buffer full, dropping frame %d timing", t.Seq)
	}
}

// Process returns the observer context as a process.
func (r *Reporter) Process() process.Process {
	return process.New(process.Settings{
		WaitForShutdownMsg: "Stopping timing reporter...",
		Process:            r.run,
	})
}

func (r *Reporter) run(ctx context.Context) []chan interface{} {
	stopped := make(chan interface{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-ctx.Done():
				r.flush()
				return
			case t := <-r.timings:
				r.fanOut(t)
			}
		}
	}()
	return []chan interface{}{stopped}
}

// flush hands whatever is already buffered to the observers.
func (r *Reporter) flush() {
	for {
		select {
		case t := <-r.timings:
			r.fanOut(t)
		default:
			return
		}
	}
}

func (r *Reporter) fanOut(t Timing) {
	r.reported.Add(1)
	for _, o := range r.observers {
		o.Observe(t)
	}
}

func (r *Reporter) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Reporter) Reported() uint64 {
	return r.reported.Load()
}
