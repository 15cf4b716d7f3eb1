package telemetry

import (
	"time"

	"github.com/tauraamui/edgecam/pkg/processor"
)

// Timing describes how one frame fared in the processing stage.
type Timing struct {
	Seq       uint64
	Captured  time.Time
	Duration  time.Duration
	Mode      processor.Mode
	Published bool
	Err       error
}

func (t Timing) Millis() float64 {
	return float64(t.Duration) / float64(time.Millisecond)
}

type Observer interface {
	Observe(Timing)
}

type ObserverFunc func(Timing)

func (f ObserverFunc) Observe(t Timing) { f(t) }
