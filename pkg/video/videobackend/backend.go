package videobackend

import (
	"context"
	"strings"
	"time"

	"github.com/tauraamui/edgecam/pkg/video/videoframe"
)

type Facing int

const (
	FacingBack Facing = iota
	FacingFront
	FacingExternal
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingExternal:
		return "external"
	default:
		return "back"
	}
}

// ParseFacing defaults to the outward, back facing direction.
func ParseFacing(s string) Facing {
	switch strings.ToLower(s) {
	case "front":
		return FacingFront
	case "external":
		return FacingExternal
	default:
		return FacingBack
	}
}

type DeviceInfo struct {
	ID     string
	Name   string
	Facing Facing
}

// Device is one opened sensor. Start must call notify from a single
// goroutine owned by the device, never re-entering it before it returns.
// AcquireLatest hands out the newest queued buffer and drops the rest.
type Device interface {
	ID() string
	Configure(Config) error
	Start(notify func(), fail func(error)) error
	AcquireLatest() (*videoframe.SensorBuffer, error)
	Dropped() uint64
	Stop() error
	Close() error
}

// Config is what a capture session is set up with. MaxBuffers bounds
// queued plus acquired buffers, once every one of them is held by the
// consumer for longer than StallTimeout the device fails with a stall.
type Config struct {
	Size         videoframe.Dimensions
	Format       videoframe.PixelFormat
	MaxBuffers   int
	StallTimeout time.Duration
}

type Backend interface {
	Devices() ([]DeviceInfo, error)
	OutputSizes(id string, format videoframe.PixelFormat) ([]videoframe.Dimensions, error)
	Open(ctx context.Context, id string) (Device, error)
}
