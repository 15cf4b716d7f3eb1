package render

import (
	"sync/atomic"
	"time"

	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/process"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/edgecam/pkg/video/videoslot"
	"github.com/tauraamui/xerror"
)

// Surface is the display side of the loop. AllocateTexture (re)creates
// texture storage, UploadTexture fills it and DrawQuad draws the texture
// over the whole viewport.
type Surface interface {
	AllocateTexture(w, h int) error
	UploadTexture(w, h int, rgba []byte) error
	DrawQuad() error
}

// ThreadBound is implemented by surfaces whose every call must come from
// the same OS thread. The loop driving one is locked to its thread and
// calls Unbind on that thread once it stops.
type ThreadBound interface {
	Surface
	Unbind()
}

type Counters struct {
	Ticks         uint64
	Uploads       uint64
	Reallocations uint64
	Invalid       uint64
}

// Loop draws the latest published frame once per tick. It is only ever
// driven from one goroutine.
type Loop struct {
	slot    *videoslot.Slot[videoframe.RenderableFrame]
	surface Surface
	dims    videoframe.Dimensions

	ticks         atomic.Uint64
	uploads       atomic.Uint64
	reallocations atomic.Uint64
	invalid       atomic.Uint64
}

func NewLoop(slot *videoslot.Slot[videoframe.RenderableFrame], surface Surface) *Loop {
	return &Loop{slot: slot, surface: surface}
}

// Tick uploads a newly published frame if there is one and then always
// redraws, so the last good frame stays on screen while none arrive.
func (l *Loop) Tick() error {
	l.ticks.Add(1)

	var uploadErr error
	if f, ok := l.slot.TakeIfPresent(); ok {
		uploadErr = l.upload(f)
	}

	if err := l.surface.DrawQuad(); err != nil {
		return xerror.Errorf("unable to draw frame: %w", err)
	}
	return uploadErr
}

func (l *Loop) upload(f *videoframe.RenderableFrame) error {
	if !f.Valid() {
		l.invalid.Add(1)
		log.Warn("Skipping frame %d: %d bytes do not match %s", f.Seq, len(f.Data), f.Dimensions())
		return nil
	}

	dims := f.Dimensions()
	if dims != l.dims {
		if err := l.surface.AllocateTexture(dims.W, dims.H); err != nil {
			return xerror.Errorf("unable to allocate %s texture: %w", dims, err)
		}
		l.reallocations.Add(1)
		l.dims = dims
	}

	if err := l.surface.UploadTexture(dims.W, dims.H, f.Data); err != nil {
		return xerror.Errorf("unable to upload frame %d: %w", f.Seq, err)
	}
	l.uploads.Add(1)
	return nil
}

func (l *Loop) Counters() Counters {
	return Counters{
		Ticks:         l.ticks.Load(),
		Uploads:       l.uploads.Load(),
		Reallocations: l.reallocations.Load(),
		Invalid:       l.invalid.Load(),
	}
}

// NewProcess runs the loop on its own goroutine, ticking once per signal
// from the display's refresh channel. ThreadBound surfaces get that
// goroutine locked to a single OS thread.
func NewProcess(loop *Loop, refresh <-chan time.Time) process.Process {
	tick := func() {
		if err := loop.Tick(); err != nil {
			log.Error("Render tick failed: %v", err)
		}
	}

	body := process.Loop(refresh, tick)
	if bound, ok := loop.surface.(ThreadBound); ok {
		body = process.LockedLoop(refresh, tick, bound.Unbind)
	}

	return process.New(process.Settings{
		WaitForShutdownMsg: "Stopping render loop...",
		Process:            body,
	})
}
