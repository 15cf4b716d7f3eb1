package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/tauraamui/edgecam/pkg/processor"
	"github.com/tauraamui/edgecam/pkg/telemetry"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/edgecam/pkg/video/videoslot"
	"github.com/tauraamui/xerror"
)

var timeNow = func() time.Time {
	return time.Now()
}

// Coordinator sits between the frame source and the render loop. Deliver
// runs the processor on each converted frame and publishes the result.
type Coordinator struct {
	processor processor.Processor
	mode      *processor.ModeSwitch
	slot      *videoslot.Slot[videoframe.RenderableFrame]
	observer  telemetry.Observer

	processed atomic.Uint64
	failed    atomic.Uint64
}

func New(
	proc processor.Processor,
	mode *processor.ModeSwitch,
	slot *videoslot.Slot[videoframe.RenderableFrame],
	observer telemetry.Observer,
) *Coordinator {
	if mode == nil {
		mode = processor.NewModeSwitch(processor.ModePassthrough)
	}
	return &Coordinator{
		processor: proc,
		mode:      mode,
		slot:      slot,
		observer:  observer,
	}
}

// Deliver is called on the acquisition goroutine, one frame at a time.
// A frame that fails processing is reported and skipped, the next one is
// handled as usual.
func (c *Coordinator) Deliver(frame videoframe.PixelFrame) {
	mode := c.mode.Load()

	start := timeNow()
	out, err := c.process(frame, mode)
	elapsed := timeNow().Sub(start)

	published := false
	if err == nil {
		rf := &videoframe.RenderableFrame{
			Seq:       frame.Seq,
			Timestamp: frame.Timestamp,
			Width:     frame.Width,
			Height:    frame.Height,
			Data:      out,
		}
		if rf.Valid() {
			c.slot.Publish(rf)
			published = true
		} else {
			err = xerror.Errorf(
				"processor returned %d bytes for %dx%d frame: %w",
				len(out), frame.Width, frame.Height, videoframe.ErrProcessingFailure,
			)
		}
	}

	c.processed.Add(1)
	if err != nil {
		c.failed.Add(1)
	}

	if c.observer != nil {
		c.observer.Observe(telemetry.Timing{
			Seq:       frame.Seq,
			Captured:  frame.Timestamp,
			Duration:  elapsed,
			Mode:      mode,
			Published: published,
			Err:       err,
		})
	}
}

func (c *Coordinator) process(frame videoframe.PixelFrame, mode processor.Mode) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = xerror.Errorf("processor panicked on frame %d: %v: %w", frame.Seq, r, videoframe.ErrProcessingFailure)
		}
	}()

	out, err = c.processor.Process(frame.Data, frame.Width, frame.Height, mode)
	if err != nil {
		return nil, xerror.Errorf("processing frame %d: %v: %w", frame.Seq, err, videoframe.ErrProcessingFailure)
	}
	return out, nil
}

func (c *Coordinator) Mode() *processor.ModeSwitch {
	return c.mode
}

func (c *Coordinator) Processed() uint64 {
	return c.processed.Load()
}

func (c *Coordinator) Failed() uint64 {
	return c.failed.Load()
}
