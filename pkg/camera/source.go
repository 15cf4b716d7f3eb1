package camera

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/video/videobackend"
	"github.com/tauraamui/edgecam/pkg/video/videoconvert"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

type Stats struct {
	Delivered    uint64
	Dropped      uint64
	FormatErrors uint64
}

// Source owns one opened sensor device. Every buffer the device reports
// is converted to NV21 and handed to the deliver callback on the
// device's delivery goroutine.
type Source struct {
	uuid    string
	title   string
	size    videoframe.Dimensions
	device  videobackend.Device
	deliver func(videoframe.PixelFrame)

	mu        sync.Mutex
	isClosing bool

	delivered    atomic.Uint64
	formatErrors atomic.Uint64
	errs         chan error
}

// Open selects the first device facing the requested direction, picks its
// largest output size and starts capturing. Failures to open or configure
// the device are returned immediately and are not retried.
func Open(
	ctx context.Context, backend videobackend.Backend, settings Settings, deliver func(videoframe.PixelFrame),
) (*Source, error) {
	settings = settings.withDefaults()

	info, err := selectDevice(backend, settings.Facing)
	if err != nil {
		return nil, err
	}

	sizes, err := backend.OutputSizes(info.ID, settings.Format)
	if err != nil {
		return nil, xerror.Errorf("unable to list output sizes of camera [%s]: %v: %w", info.Name, err, videoframe.ErrDeviceUnavailable)
	}
	size := largestSize(sizes, settings.Fallback)

	device, err := backend.Open(ctx, info.ID)
	if err != nil {
		return nil, xerror.Errorf("unable to open camera [%s]: %v: %w", info.Name, err, videoframe.ErrDeviceUnavailable)
	}

	src := &Source{
		uuid:    uuid.NewString(),
		title:   info.Name,
		size:    size,
		device:  device,
		deliver: deliver,
		errs:    make(chan error, 1),
	}

	if err := device.Configure(videobackend.Config{
		Size:         size,
		Format:       settings.Format,
		MaxBuffers:   settings.MaxBuffers,
		StallTimeout: settings.ReleaseTimeout,
	}); err != nil {
		device.Close()
		return nil, xerror.Errorf("unable to configure camera [%s] at %s: %v: %w", info.Name, size, err, videoframe.ErrConfigureFailed)
	}

	if err := device.Start(src.onBufferReady, src.onFailure); err != nil {
		device.Close()
		return nil, xerror.Errorf("unable to start camera [%s]: %v: %w", info.Name, err, videoframe.ErrConfigureFailed)
	}

	log.Info("Opened camera [%s] at %s", info.Name, size)
	return src, nil
}

func selectDevice(backend videobackend.Backend, facing videobackend.Facing) (videobackend.DeviceInfo, error) {
	devices, err := backend.Devices()
	if err != nil {
		return videobackend.DeviceInfo{}, xerror.Errorf("unable to list cameras: %v: %w", err, videoframe.ErrDeviceUnavailable)
	}
	for _, d := range devices {
		if d.Facing == facing {
			return d, nil
		}
	}
	return videobackend.DeviceInfo{}, xerror.Errorf("no %s facing camera: %w", facing, videoframe.ErrDeviceUnavailable)
}

// largestSize picks by longest side, the first reported wins a tie.
func largestSize(sizes []videoframe.Dimensions, fallback videoframe.Dimensions) videoframe.Dimensions {
	if len(sizes) == 0 {
		return fallback
	}
	largest := sizes[0]
	for _, s := range sizes[1:] {
		if s.Longest() > largest.Longest() {
			largest = s
		}
	}
	return largest
}

func (s *Source) onBufferReady() {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := s.device.AcquireLatest()
	if err != nil {
		log.Error("Unable to acquire buffer from camera [%s]: %v", s.title, err)
		return
	}
	if buf == nil {
		return
	}
	defer buf.Release()

	if s.isClosing {
		return
	}

	frame, err := videoconvert.Convert(buf)
	if err != nil {
		s.formatErrors.Add(1)
		log.Warn("Dropping buffer %d from camera [%s]: %v", buf.Seq, s.title, err)
		return
	}

	s.delivered.Add(1)
	s.deliver(frame)
}

func (s *Source) onFailure(err error) {
	log.Error("Camera [%s] failed: %v", s.title, err)
	select {
	case s.errs <- err:
	default:
	}
}

func (s *Source) UUID() string {
	return s.uuid
}

func (s *Source) Title() string {
	return s.title
}

func (s *Source) Size() videoframe.Dimensions {
	return s.size
}

// Err reports failures the device cannot recover from, after one
// arrives the source delivers nothing further.
func (s *Source) Err() <-chan error {
	return s.errs
}

func (s *Source) IsClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosing
}

func (s *Source) Stats() Stats {
	return Stats{
		Delivered:    s.delivered.Load(),
		Dropped:      s.device.Dropped(),
		FormatErrors: s.formatErrors.Load(),
	}
}

// Close waits for any delivery in progress, after it returns the deliver
// callback is never called again.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.isClosing {
		s.mu.Unlock()
		return nil
	}
	s.isClosing = true
	s.mu.Unlock()

	if err := s.device.Stop(); err != nil {
		log.Error("Unable to stop camera [%s]: %v", s.title, err)
	}
	if err := s.device.Close(); err != nil {
		return xerror.Errorf("unable to close camera [%s]: %w", s.title, err)
	}
	return nil
}
