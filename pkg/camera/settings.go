package camera

import (
	"time"

	"github.com/tauraamui/edgecam/pkg/video/videobackend"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
)

type Settings struct {
	Facing videobackend.Facing
	Format videoframe.PixelFormat
	// Fallback is used when the device reports no output sizes.
	Fallback       videoframe.Dimensions
	MaxBuffers     int
	ReleaseTimeout time.Duration
}

var defaultFallback = videoframe.Dimensions{W: 1280, H: 720}

const (
	defaultMaxBuffers     = 3
	defaultReleaseTimeout = 2 * time.Second
)

func (s Settings) withDefaults() Settings {
	if s.Format == videoframe.FormatUnknown {
		s.Format = videoframe.FormatYUV420
	}
	if s.Fallback.IsZero() {
		s.Fallback = defaultFallback
	}
	if s.MaxBuffers < 1 {
		s.MaxBuffers = defaultMaxBuffers
	}
	if s.ReleaseTimeout <= 0 {
		s.ReleaseTimeout = defaultReleaseTimeout
	}
	return s
}
