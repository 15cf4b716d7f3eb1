package camera_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tacusci/logging/v2"
	"github.com/tauraamui/edgecam/pkg/camera"
	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/video/videobackend"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
)

type testDevice struct {
	id           string
	mu           sync.Mutex
	configured   videobackend.Config
	onConfigure  error
	onStart      error
	notify       func()
	fail         func(error)
	latest       *videoframe.SensorBuffer
	dropped      uint64
	stopCalls    int
	closeCalls   int
	releaseCalls int
}

func (d *testDevice) ID() string { return d.id }

func (d *testDevice) Configure(cfg videobackend.Config) error {
	d.configured = cfg
	return d.onConfigure
}

func (d *testDevice) Start(notify func(), fail func(error)) error {
	if d.onStart != nil {
		return d.onStart
	}
	d.notify = notify
	d.fail = fail
	return nil
}

func (d *testDevice) AcquireLatest() (*videoframe.SensorBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.latest
	d.latest = nil
	return buf, nil
}

func (d *testDevice) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *testDevice) Stop() error {
	d.stopCalls++
	return nil
}

func (d *testDevice) Close() error {
	d.closeCalls++
	return nil
}

// push queues a buffer the way a sensor would, replacing any unacquired one.
func (d *testDevice) push(buf *videoframe.SensorBuffer) {
	d.mu.Lock()
	old := d.latest
	if old != nil {
		d.dropped++
	}
	d.latest = buf
	d.mu.Unlock()

	// release takes d.mu itself
	if old != nil {
		old.Release()
	}
}

func (d *testDevice) releases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseCalls
}

func (d *testDevice) newBuffer(seq uint64, w, h int) *videoframe.SensorBuffer {
	y := make([]byte, w*h)
	for i := range y {
		y[i] = byte(seq)
	}
	u := make([]byte, (w/2)*(h/2))
	v := make([]byte, (w/2)*(h/2))
	return videoframe.NewSensorBuffer(seq, time.Now(), w, h, videoframe.FormatYUV420, []videoframe.Plane{
		{Data: y, RowStride: w, PixelStride: 1},
		{Data: u, RowStride: w / 2, PixelStride: 1},
		{Data: v, RowStride: w / 2, PixelStride: 1},
	}, func() {
		d.mu.Lock()
		d.releaseCalls++
		d.mu.Unlock()
	})
}

type testBackend struct {
	devices        []videobackend.DeviceInfo
	sizes          map[string][]videoframe.Dimensions
	onDevicesError error
	onOpenError    error
	opened         map[string]*testDevice
}

func (b *testBackend) Devices() ([]videobackend.DeviceInfo, error) {
	return b.devices, b.onDevicesError
}

func (b *testBackend) OutputSizes(id string, format videoframe.PixelFormat) ([]videoframe.Dimensions, error) {
	return b.sizes[id], nil
}

func (b *testBackend) Open(ctx context.Context, id string) (videobackend.Device, error) {
	if b.onOpenError != nil {
		return nil, b.onOpenError
	}
	d, ok := b.opened[id]
	if !ok {
		d = &testDevice{id: id}
		b.opened[id] = d
	}
	return d, nil
}

func newTestBackend() *testBackend {
	return &testBackend{
		devices: []videobackend.DeviceInfo{
			{ID: "front", Name: "front camera", Facing: videobackend.FacingFront},
			{ID: "back", Name: "back camera", Facing: videobackend.FacingBack},
			{ID: "back2", Name: "second back camera", Facing: videobackend.FacingBack},
		},
		sizes: map[string][]videoframe.Dimensions{
			"back": {{W: 640, H: 480}, {W: 1280, H: 720}, {W: 720, H: 1280}, {W: 320, H: 240}},
		},
		opened: map[string]*testDevice{},
	}
}

func overloadWarnLog(overload func(string, ...interface{})) func() {
	logWarnRef := log.Warn
	log.Warn = overload
	return func() { log.Warn = logWarnRef }
}

type SourceTestSuite struct {
	suite.Suite
	backend         *testBackend
	warnLogs        []string
	resetWarnLogs   func()
	deliveredFrames []videoframe.PixelFrame
}

func (suite *SourceTestSuite) SetupSuite() {
	logging.CurrentLoggingLevel = logging.SilentLevel
}

func (suite *SourceTestSuite) TearDownSuite() {
	logging.CurrentLoggingLevel = logging.WarnLevel
}

func (suite *SourceTestSuite) SetupTest() {
	suite.backend = newTestBackend()
	suite.deliveredFrames = nil
	suite.resetWarnLogs = overloadWarnLog(func(format string, a ...interface{}) {
		suite.warnLogs = append(suite.warnLogs, fmt.Sprintf(format, a...))
	})
}

func (suite *SourceTestSuite) TearDownTest() {
	suite.resetWarnLogs()
	suite.warnLogs = nil
}

func (suite *SourceTestSuite) deliver(f videoframe.PixelFrame) {
	suite.deliveredFrames = append(suite.deliveredFrames, f)
}

func (suite *SourceTestSuite) open(settings camera.Settings) (*camera.Source, *testDevice) {
	src, err := camera.Open(context.Background(), suite.backend, settings, suite.deliver)
	suite.Require().NoError(err)
	return src, suite.backend.opened[deviceIDByName(suite.backend, src.Title())]
}

func deviceIDByName(b *testBackend, name string) string {
	for _, d := range b.devices {
		if d.Name == name {
			return d.ID
		}
	}
	return ""
}

func TestSourceTestSuite(t *testing.T) {
	suite.Run(t, &SourceTestSuite{})
}

func (suite *SourceTestSuite) TestOpenPicksFirstBackFacingDeviceAndLargestSize() {
	src, device := suite.open(camera.Settings{})
	defer src.Close()

	suite.Equal("back camera", src.Title())
	suite.Equal("back", device.ID())
	// 1280x720 and 720x1280 share the longest side, the first one listed wins
	suite.Equal(videoframe.Dimensions{W: 1280, H: 720}, src.Size())
	suite.Equal(videobackend.Config{
		Size:         videoframe.Dimensions{W: 1280, H: 720},
		Format:       videoframe.FormatYUV420,
		MaxBuffers:   3,
		StallTimeout: 2 * time.Second,
	}, device.configured)
	suite.NotEmpty(src.UUID())
}

func (suite *SourceTestSuite) TestOpenUsesFallbackWhenNoSizesReported() {
	src, device := suite.open(camera.Settings{
		Facing:   videobackend.FacingFront,
		Fallback: videoframe.Dimensions{W: 800, H: 600},
	})
	defer src.Close()

	suite.Equal(videoframe.Dimensions{W: 800, H: 600}, device.configured.Size)

	src2, device2 := suite.open(camera.Settings{Facing: videobackend.FacingFront})
	defer src2.Close()
	suite.Equal(videoframe.Dimensions{W: 1280, H: 720}, device2.configured.Size)
}

func (suite *SourceTestSuite) TestOpenWithNoMatchingFacingIsDeviceUnavailable() {
	_, err := camera.Open(context.Background(), suite.backend, camera.Settings{Facing: videobackend.FacingExternal}, suite.deliver)
	suite.ErrorIs(err, videoframe.ErrDeviceUnavailable)
	suite.Contains(err.Error(), "no external facing camera")
}

func (suite *SourceTestSuite) TestOpenFailureIsDeviceUnavailable() {
	suite.backend.onOpenError = errors.New("permission denied")
	_, err := camera.Open(context.Background(), suite.backend, camera.Settings{}, suite.deliver)
	suite.ErrorIs(err, videoframe.ErrDeviceUnavailable)
	suite.True(videoframe.IsFatal(err))
}

func (suite *SourceTestSuite) TestListDevicesFailureIsDeviceUnavailable() {
	suite.backend.onDevicesError = errors.New("service unavailable")
	_, err := camera.Open(context.Background(), suite.backend, camera.Settings{}, suite.deliver)
	suite.ErrorIs(err, videoframe.ErrDeviceUnavailable)
}

func (suite *SourceTestSuite) TestConfigureFailureIsConfigureFailedAndClosesDevice() {
	device := &testDevice{id: "back", onConfigure: errors.New("unsupported size")}
	suite.backend.opened["back"] = device

	_, err := camera.Open(context.Background(), suite.backend, camera.Settings{}, suite.deliver)
	suite.ErrorIs(err, videoframe.ErrConfigureFailed)
	suite.Equal(1, device.closeCalls)
}

func (suite *SourceTestSuite) TestStartFailureIsConfigureFailed() {
	device := &testDevice{id: "back", onStart: errors.New("session rejected")}
	suite.backend.opened["back"] = device

	_, err := camera.Open(context.Background(), suite.backend, camera.Settings{}, suite.deliver)
	suite.ErrorIs(err, videoframe.ErrConfigureFailed)
	suite.Equal(1, device.closeCalls)
}

func (suite *SourceTestSuite) TestNotificationDeliversLatestBufferAndReleasesIt() {
	src, device := suite.open(camera.Settings{})
	defer src.Close()

	device.push(device.newBuffer(1, 4, 2))
	device.push(device.newBuffer(2, 4, 2))
	device.notify()

	suite.Require().Len(suite.deliveredFrames, 1)
	frame := suite.deliveredFrames[0]
	suite.Equal(uint64(2), frame.Seq)
	suite.Equal(videoframe.NV21Size(4, 2), len(frame.Data))
	suite.Equal(byte(2), frame.Data[0])
	suite.Equal(2, device.releases())
	suite.Equal(camera.Stats{Delivered: 1, Dropped: 1}, src.Stats())

	// a notification with nothing queued is a no-op
	device.notify()
	suite.Len(suite.deliveredFrames, 1)
}

func (suite *SourceTestSuite) TestMalformedBufferIsDroppedAndCounted() {
	src, device := suite.open(camera.Settings{})
	defer src.Close()

	bad := videoframe.NewSensorBuffer(7, time.Now(), 3, 2, videoframe.FormatYUV420, nil, func() {
		device.mu.Lock()
		device.releaseCalls++
		device.mu.Unlock()
	})
	device.push(bad)
	device.notify()

	device.push(device.newBuffer(8, 4, 2))
	device.notify()

	suite.Require().Len(suite.deliveredFrames, 1)
	suite.Equal(uint64(8), suite.deliveredFrames[0].Seq)
	suite.Equal(uint64(1), src.Stats().FormatErrors)
	suite.Equal(2, device.releases())
	suite.Require().Len(suite.warnLogs, 1)
	suite.Contains(suite.warnLogs[0], "Dropping buffer 7 from camera [back camera]")
}

func (suite *SourceTestSuite) TestCloseIsIdempotentAndStopsDelivery() {
	src, device := suite.open(camera.Settings{})

	suite.NoError(src.Close())
	suite.NoError(src.Close())
	suite.True(src.IsClosing())
	suite.Equal(1, device.stopCalls)
	suite.Equal(1, device.closeCalls)

	// a late notification still returns its buffer but delivers nothing
	device.push(device.newBuffer(3, 4, 2))
	device.notify()
	suite.Empty(suite.deliveredFrames)
	suite.Equal(1, device.releases())
}

func (suite *SourceTestSuite) TestDeviceFailureSurfacesOnErr() {
	src, device := suite.open(camera.Settings{})
	defer src.Close()

	stall := fmt.Errorf("held too long: %w", videoframe.ErrResourceStall)
	device.fail(stall)
	device.fail(errors.New("second failure is dropped"))

	select {
	case err := <-src.Err():
		suite.ErrorIs(err, videoframe.ErrResourceStall)
	default:
		suite.Fail("expected failure on error channel")
	}
}

func TestSourceWithMockBackendDeliversFrames(t *testing.T) {
	backend := videobackend.Mock(videobackend.MockSettings{
		FPS:        100,
		RowPadding: 16,
		Sizes:      []videoframe.Dimensions{{W: 64, H: 48}, {W: 32, H: 24}},
	})

	frames := make(chan videoframe.PixelFrame, 1)
	src, err := camera.Open(context.Background(), backend, camera.Settings{}, func(f videoframe.PixelFrame) {
		select {
		case frames <- f:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-frames:
		if f.Width != 64 || f.Height != 48 || len(f.Data) != videoframe.NV21Size(64, 48) {
			t.Errorf("unexpected frame %dx%d with %d bytes", f.Width, f.Height, len(f.Data))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame from mock camera")
	}

	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	delivered := src.Stats().Delivered
	time.Sleep(50 * time.Millisecond)
	if src.Stats().Delivered != delivered {
		t.Error("frames delivered after close")
	}
}

func (suite *SourceTestSuite) TestPushReplacingUnacquiredBufferReleasesIt() {
	device := &testDevice{id: "back"}
	first := device.newBuffer(1, 4, 2)

	suite.NoError(callW3sTimeout(func() {
		device.push(first)
		device.push(device.newBuffer(2, 4, 2))
		device.push(device.newBuffer(3, 4, 2))
	}))
	suite.Equal(2, device.releases())
	suite.Equal(uint64(2), device.Dropped())

	buf, err := device.AcquireLatest()
	suite.Require().NoError(err)
	suite.Equal(uint64(3), buf.Seq)
}

func callW3sTimeout(f func()) error {
	return callWTimeout(f, time.After(3*time.Second), "test timeout 3s limit exceeded")
}

func callWTimeout(f func(), t <-chan time.Time, errmsg string) error {
	done := make(chan interface{})
	go func(d chan interface{}, f func()) {
		defer close(d)
		f()
	}(done, f)

	for {
		select {
		case <-t:
			return errors.New(errmsg)
		case <-done:
			return nil
		}
	}
}
