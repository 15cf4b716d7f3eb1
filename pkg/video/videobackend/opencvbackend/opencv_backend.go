package opencvbackend

import (
	"context"
	"strconv"
	"sync"

	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/video/videobackend"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

// Source describes one capture device OpenCV can open. Addr is either a
// device index such as "0" or a stream or file address.
type Source struct {
	ID     string
	Name   string
	Facing videobackend.Facing
	Addr   string
	// Sizes lists the output sizes the device is known to support,
	// OpenCV has no way to enumerate them.
	Sizes []videoframe.Dimensions
}

type openCVBackend struct {
	sources []Source
}

func New(sources []Source) videobackend.Backend {
	return &openCVBackend{sources: sources}
}

func (b *openCVBackend) Devices() ([]videobackend.DeviceInfo, error) {
	devices := make([]videobackend.DeviceInfo, 0, len(b.sources))
	for _, s := range b.sources {
		devices = append(devices, videobackend.DeviceInfo{ID: s.ID, Name: s.Name, Facing: s.Facing})
	}
	return devices, nil
}

func (b *openCVBackend) lookup(id string) (Source, error) {
	for _, s := range b.sources {
		if s.ID == id {
			return s, nil
		}
	}
	return Source{}, xerror.Errorf("unknown OpenCV device [%s]: %w", id, videoframe.ErrDeviceUnavailable)
}

func (b *openCVBackend) OutputSizes(id string, format videoframe.PixelFormat) ([]videoframe.Dimensions, error) {
	s, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	if format != videoframe.FormatYUV420 {
		return nil, nil
	}
	return append([]videoframe.Dimensions{}, s.Sizes...), nil
}

func (b *openCVBackend) Open(ctx context.Context, id string) (videobackend.Device, error) {
	s, err := b.lookup(id)
	if err != nil {
		return nil, err
	}

	result := make(chan openVideoStreamResult, 1)
	go openVideoStream(s.Addr, result)
	select {
	case r := <-result:
		if r.err != nil {
			return nil, xerror.Errorf("unable to open [%s]: %v: %w", s.Name, r.err, videoframe.ErrDeviceUnavailable)
		}
		return &openCVDevice{source: s, vc: r.vc, mat: gocv.NewMat(), yuv: gocv.NewMat()}, nil
	case <-ctx.Done():
		// the capture may still open after we give up on it
		go func() {
			if r := <-result; r.vc != nil {
				r.vc.Close()
			}
		}()
		return nil, xerror.Errorf("opening [%s] cancelled: %w", s.Name, videoframe.ErrDeviceUnavailable)
	}
}

type openVideoStreamResult struct {
	vc  *gocv.VideoCapture
	err error
}

func openVideoStream(addr string, d chan openVideoStreamResult) {
	vc, err := openVideoCapture(addr)
	d <- openVideoStreamResult{vc: vc, err: err}
}

var openVideoCapture = func(addr string) (*gocv.VideoCapture, error) {
	if index, err := strconv.Atoi(addr); err == nil {
		return gocv.OpenVideoCapture(index)
	}
	return gocv.OpenVideoCapture(addr)
}

var readFromVideoCapture = func(vc *gocv.VideoCapture, mat *gocv.Mat) bool {
	if vc.IsOpened() {
		return vc.Read(mat)
	}
	return false
}

type openCVDevice struct {
	source   Source
	mu       sync.Mutex
	readMu   sync.Mutex
	vc       *gocv.VideoCapture
	mat      gocv.Mat
	yuv      gocv.Mat
	size     videoframe.Dimensions
	pool     *videobackend.BufferPool
	streamer *videobackend.Streamer
	closed   bool
}

func (d *openCVDevice) ID() string {
	return d.source.ID
}

func (d *openCVDevice) Configure(cfg videobackend.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return xerror.New("cannot configure closed OpenCV device")
	}
	if cfg.Format != videoframe.FormatYUV420 {
		return xerror.Errorf("OpenCV device only produces %s, not %s", videoframe.FormatYUV420, cfg.Format)
	}

	d.vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Size.W))
	d.vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Size.H))
	actual := videoframe.Dimensions{
		W: int(d.vc.Get(gocv.VideoCaptureFrameWidth)),
		H: int(d.vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	if actual.IsZero() {
		actual = cfg.Size
	}
	if actual != cfg.Size {
		log.Warn("Device [%s] using %s instead of requested %s", d.source.Name, actual, cfg.Size)
	}
	if actual.W%2 != 0 || actual.H%2 != 0 {
		return xerror.Errorf("device [%s] output size %s is not even", d.source.Name, actual)
	}

	d.size = actual
	d.pool = videobackend.NewBufferPool(cfg.MaxBuffers)
	d.streamer = videobackend.NewStreamer(d.source.Name, d.pool, cfg.StallTimeout, d.capture)
	return nil
}

// capture reads one BGR frame and splits it into three tightly packed
// I420 planes.
func (d *openCVDevice) capture(ctx context.Context) (videobackend.Captured, error) {
	d.readMu.Lock()
	defer d.readMu.Unlock()

	if d.isClosed() {
		return videobackend.Captured{}, xerror.New("device closed")
	}
	if !readFromVideoCapture(d.vc, &d.mat) || d.mat.Empty() {
		return videobackend.Captured{}, xerror.New("unable to read from video capture")
	}

	w, h := d.mat.Cols(), d.mat.Rows()
	if w%2 != 0 || h%2 != 0 {
		return videobackend.Captured{}, xerror.Errorf("captured frame %dx%d is not even", w, h)
	}
	gocv.CvtColor(d.mat, &d.yuv, gocv.ColorBGRToYUVI420)
	data := d.yuv.ToBytes()

	lumaSize, chromaSize := w*h, (w/2)*(h/2)
	if len(data) < lumaSize+2*chromaSize {
		return videobackend.Captured{}, xerror.Errorf("converted frame holds %d bytes, expected %d", len(data), lumaSize+2*chromaSize)
	}

	return videobackend.Captured{
		Width: w, Height: h,
		Format: videoframe.FormatYUV420,
		Planes: []videoframe.Plane{
			{Data: data[:lumaSize], RowStride: w, PixelStride: 1},
			{Data: data[lumaSize : lumaSize+chromaSize], RowStride: w / 2, PixelStride: 1},
			{Data: data[lumaSize+chromaSize : lumaSize+2*chromaSize], RowStride: w / 2, PixelStride: 1},
		},
	}, nil
}

func (d *openCVDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *openCVDevice) Start(notify func(), fail func(error)) error {
	d.mu.Lock()
	streamer := d.streamer
	d.mu.Unlock()
	if streamer == nil {
		return xerror.New("OpenCV device must be configured before starting")
	}
	return streamer.Start(notify, fail)
}

func (d *openCVDevice) AcquireLatest() (*videoframe.SensorBuffer, error) {
	d.mu.Lock()
	pool := d.pool
	d.mu.Unlock()
	if pool == nil {
		return nil, xerror.New("OpenCV device is not configured")
	}
	return pool.AcquireLatest(), nil
}

func (d *openCVDevice) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil {
		return 0
	}
	return d.pool.Dropped()
}

func (d *openCVDevice) Stop() error {
	d.mu.Lock()
	streamer := d.streamer
	d.mu.Unlock()
	if streamer != nil {
		streamer.Stop()
	}
	return nil
}

func (d *openCVDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.readMu.Lock()
	defer d.readMu.Unlock()
	d.mat.Close()
	d.yuv.Close()
	return d.vc.Close()
}
