package processor

import (
	"strings"
	"sync/atomic"
)

// Processor turns one NV21 frame into RGBA bytes of length w*h*4. It is
// called synchronously on the acquisition goroutine, one frame at a time.
type Processor interface {
	Process(nv21 []byte, width, height int, mode Mode) ([]byte, error)
}

// Func adapts a plain function to a Processor.
type Func func(nv21 []byte, width, height int, mode Mode) ([]byte, error)

func (f Func) Process(nv21 []byte, width, height int, mode Mode) ([]byte, error) {
	return f(nv21, width, height, mode)
}

type Mode int32

const (
	ModePassthrough Mode = iota
	ModeTransformed
)

func (m Mode) String() string {
	if m == ModeTransformed {
		return "transformed"
	}
	return "passthrough"
}

func ParseMode(s string) Mode {
	if strings.ToLower(s) == "transformed" {
		return ModeTransformed
	}
	return ModePassthrough
}

// ModeSwitch is the live mode flag, written by the UI and read once per
// frame by the pipeline.
type ModeSwitch struct {
	v atomic.Int32
}

func NewModeSwitch(initial Mode) *ModeSwitch {
	s := ModeSwitch{}
	s.Store(initial)
	return &s
}

func (s *ModeSwitch) Load() Mode {
	return Mode(s.v.Load())
}

func (s *ModeSwitch) Store(m Mode) {
	s.v.Store(int32(m))
}

// Toggle flips between passthrough and transformed and returns the new mode.
func (s *ModeSwitch) Toggle() Mode {
	for {
		old := s.v.Load()
		next := ModeTransformed
		if Mode(old) == ModeTransformed {
			next = ModePassthrough
		}
		if s.v.CompareAndSwap(old, int32(next)) {
			return next
		}
	}
}
