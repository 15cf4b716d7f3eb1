package telemetry

import "github.com/tauraamui/edgecam/pkg/log"

// LogObserver writes every timing to the debug log and failures to the
// warning log.
type LogObserver struct{}

func (LogObserver) Observe(t Timing) {
	if t.Err != nil {
		log.Warn("Frame %d not published after %.1f ms: %v", t.Seq, t.Millis(), t.Err)
		return
	}
	log.Debug("frame time: %.1f ms (frame %d, %s)", t.Millis(), t.Seq, t.Mode)
}
