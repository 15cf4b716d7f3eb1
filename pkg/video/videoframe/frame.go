package videoframe

import (
	"fmt"
	"sync"
	"time"
)

type Dimensions struct {
	W, H int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.W, d.H)
}

// Longest returns the larger of the two sides.
func (d Dimensions) Longest() int {
	if d.W > d.H {
		return d.W
	}
	return d.H
}

func (d Dimensions) IsZero() bool {
	return d.W <= 0 || d.H <= 0
}

type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	// FormatYUV420 is flexible 4:2:0 planar, three planes each with their own strides.
	FormatYUV420
	// FormatNV21 is a luma plane followed by interleaved V,U pairs.
	FormatNV21
	FormatRGBA
)

func (f PixelFormat) String() string {
	switch f {
	case FormatYUV420:
		return "YUV_420_888"
	case FormatNV21:
		return "NV21"
	case FormatRGBA:
		return "RGBA_8888"
	default:
		return "UNKNOWN"
	}
}

// Frame is satisfied by anything the pipeline hands around which
// owns a resource needing release.
type Frame interface {
	Dimensions() Dimensions
	Close()
}

type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// SensorBuffer is one raw frame as delivered by a device. It must be
// released exactly once, after which its planes must not be read.
type SensorBuffer struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Format    PixelFormat
	Planes    []Plane

	releaseOnce sync.Once
	release     func()
}

// NewSensorBuffer attaches a release hook, called once on the first
// Release or Close.
func NewSensorBuffer(seq uint64, ts time.Time, w, h int, format PixelFormat, planes []Plane, release func()) *SensorBuffer {
	return &SensorBuffer{
		Seq: seq, Timestamp: ts,
		Width: w, Height: h,
		Format:  format,
		Planes:  planes,
		release: release,
	}
}

func (b *SensorBuffer) Dimensions() Dimensions {
	return Dimensions{W: b.Width, H: b.Height}
}

func (b *SensorBuffer) Release() {
	b.releaseOnce.Do(func() {
		if b.release != nil {
			b.release()
		}
	})
}

func (b *SensorBuffer) Close() {
	b.Release()
}

// PixelFrame holds NV21 bytes, immutable once created.
type PixelFrame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

func (f PixelFrame) Dimensions() Dimensions {
	return Dimensions{W: f.Width, H: f.Height}
}

// RenderableFrame holds 4 channel interleaved RGBA bytes.
type RenderableFrame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

func (f *RenderableFrame) Dimensions() Dimensions {
	return Dimensions{W: f.Width, H: f.Height}
}

// Valid reports whether the byte length agrees with the declared dimensions.
func (f *RenderableFrame) Valid() bool {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return false
	}
	return len(f.Data) == RGBASize(f.Width, f.Height)
}

func NV21Size(w, h int) int {
	return w*h + w*h/2
}

func RGBASize(w, h int) int {
	return w * h * 4
}
