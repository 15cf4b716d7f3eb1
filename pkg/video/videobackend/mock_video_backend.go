package videobackend

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

type MockSettings struct {
	FPS   int
	Label string
	// RowPadding is added to every row stride so consumers are forced
	// to honor strides rather than assume tightly packed rows.
	RowPadding int
	Sizes      []videoframe.Dimensions
}

var defaultMockSizes = []videoframe.Dimensions{
	{W: 640, H: 480}, {W: 1280, H: 720}, {W: 320, H: 240},
}

type mockVideoBackend struct {
	sett    MockSettings
	devices []DeviceInfo
}

// Mock is a backend with one back and one front facing device, both
// rendering a colour bar test card stamped with a frame counter.
func Mock(sett MockSettings) Backend {
	if sett.FPS <= 0 {
		sett.FPS = 30
	}
	if len(sett.Label) == 0 {
		sett.Label = "EDGECAM_MOCK_SENSOR"
	}
	if len(sett.Sizes) == 0 {
		sett.Sizes = defaultMockSizes
	}
	return &mockVideoBackend{
		sett: sett,
		devices: []DeviceInfo{
			{ID: uuid.NewString(), Name: "mock back sensor", Facing: FacingBack},
			{ID: uuid.NewString(), Name: "mock front sensor", Facing: FacingFront},
		},
	}
}

func (b *mockVideoBackend) Devices() ([]DeviceInfo, error) {
	return append([]DeviceInfo{}, b.devices...), nil
}

func (b *mockVideoBackend) lookup(id string) (DeviceInfo, error) {
	for _, d := range b.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return DeviceInfo{}, xerror.Errorf("unknown mock device [%s]: %w", id, videoframe.ErrDeviceUnavailable)
}

func (b *mockVideoBackend) OutputSizes(id string, format videoframe.PixelFormat) ([]videoframe.Dimensions, error) {
	if _, err := b.lookup(id); err != nil {
		return nil, err
	}
	if format != videoframe.FormatYUV420 {
		return nil, nil
	}
	return append([]videoframe.Dimensions{}, b.sett.Sizes...), nil
}

func (b *mockVideoBackend) Open(ctx context.Context, id string) (Device, error) {
	info, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, xerror.Errorf("opening mock device cancelled: %w", err)
	}
	return &mockVideoDevice{info: info, sett: b.sett}, nil
}

type mockVideoDevice struct {
	info     DeviceInfo
	sett     MockSettings
	mu       sync.Mutex
	cfg      Config
	pool     *BufferPool
	streamer *Streamer
	card     *testCard
	closed   bool
}

func (d *mockVideoDevice) ID() string {
	return d.info.ID
}

func (d *mockVideoDevice) Configure(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return xerror.New("cannot configure closed mock device")
	}
	if cfg.Format != videoframe.FormatYUV420 {
		return xerror.Errorf("mock device only produces %s, not %s", videoframe.FormatYUV420, cfg.Format)
	}
	if cfg.Size.IsZero() || cfg.Size.W%2 != 0 || cfg.Size.H%2 != 0 {
		return xerror.Errorf("unsupported mock output size %s", cfg.Size)
	}

	card, err := newTestCard(cfg.Size, d.info.Name, d.sett.Label)
	if err != nil {
		return err
	}

	d.cfg = cfg
	d.card = card
	d.pool = NewBufferPool(cfg.MaxBuffers)
	d.streamer = NewStreamer(d.info.Name, d.pool, cfg.StallTimeout, d.capture())
	return nil
}

func (d *mockVideoDevice) capture() CaptureFunc {
	ticker := time.Second / time.Duration(d.sett.FPS)
	next := time.Time{}
	var frameCount uint64
	return func(ctx context.Context) (Captured, error) {
		if wait := time.Until(next); wait > 0 {
			select {
			case <-ctx.Done():
				return Captured{}, ctx.Err()
			case <-time.After(wait):
			}
		}
		next = time.Now().Add(ticker)
		frameCount++

		img, err := d.card.render(frameCount)
		if err != nil {
			return Captured{}, err
		}
		return rgbaToPlanes(img, d.sett.RowPadding), nil
	}
}

func (d *mockVideoDevice) Start(notify func(), fail func(error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return xerror.New("cannot start closed mock device")
	}
	if d.streamer == nil {
		return xerror.New("mock device must be configured before starting")
	}
	return d.streamer.Start(notify, fail)
}

func (d *mockVideoDevice) AcquireLatest() (*videoframe.SensorBuffer, error) {
	d.mu.Lock()
	pool := d.pool
	d.mu.Unlock()
	if pool == nil {
		return nil, xerror.New("mock device is not configured")
	}
	return pool.AcquireLatest(), nil
}

func (d *mockVideoDevice) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil {
		return 0
	}
	return d.pool.Dropped()
}

func (d *mockVideoDevice) Stop() error {
	d.mu.Lock()
	streamer := d.streamer
	d.mu.Unlock()
	if streamer != nil {
		streamer.Stop()
	}
	return nil
}

func (d *mockVideoDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.card = nil
	return nil
}

// rgbaToPlanes lays the image out the way many phone sensors do: a
// padded luma plane, then one interleaved V,U area which the two chroma
// planes view at offsets 1 and 0 with a pixel stride of 2.
func rgbaToPlanes(img *image.RGBA, padding int) Captured {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	stride := w + padding
	luma := make([]byte, stride*h)
	chroma := make([]byte, stride*h/2)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			r, g, b := int(img.Pix[i]), int(img.Pix[i+1]), int(img.Pix[i+2])
			yy := (66*r + 129*g + 25*b + 128) >> 8
			luma[y*stride+x] = clamp(yy + 16)
			if x%2 == 0 && y%2 == 0 {
				ci := (y/2)*stride + x
				cr := (112*r - 94*g - 18*b + 128) >> 8
				cb := (-38*r - 74*g + 112*b + 128) >> 8
				chroma[ci] = clamp(cr + 128)
				chroma[ci+1] = clamp(cb + 128)
			}
		}
	}

	return Captured{
		Width: w, Height: h,
		Format: videoframe.FormatYUV420,
		Planes: []videoframe.Plane{
			{Data: luma, RowStride: stride, PixelStride: 1},
			{Data: chroma[1:], RowStride: stride, PixelStride: 2},
			{Data: chroma, RowStride: stride, PixelStride: 2},
		},
	}
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

type testCard struct {
	base     *image.RGBA
	face     font.Face
	fontSize float64
	title    string
	label    string
}

func newTestCard(size videoframe.Dimensions, title, label string) (*testCard, error) {
	ttf, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, xerror.Errorf("unable to parse test card font: %w", err)
	}
	fontSize := float64(size.H) / 12
	return &testCard{
		base: renderColourBars(size.W, size.H),
		face: truetype.NewFace(ttf, &truetype.Options{
			Size:    fontSize,
			Hinting: font.HintingFull,
		}),
		fontSize: fontSize,
		title:    title,
		label:    label,
	}, nil
}

func (c *testCard) render(frame uint64) (*image.RGBA, error) {
	canvas := cloneImage(c.base)
	lineHeight := int(c.fontSize * 1.4)
	lines := []string{
		c.label,
		c.title,
		fmt.Sprintf("#%d %s", frame, time.Now().Format("15:04:05.000")),
	}
	for i, line := range lines {
		drawText(canvas, c.face, 5, lineHeight*(i+1), line)
	}
	return canvas, nil
}

var colourBars = [7]color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

func renderColourBars(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	barWidth := w / len(colourBars)
	if barWidth == 0 {
		barWidth = 1
	}
	for x := 0; x < w; x++ {
		bar := x / barWidth
		if bar >= len(colourBars) {
			bar = len(colourBars) - 1
		}
		for y := 0; y < h; y++ {
			img.SetRGBA(x, y, colourBars[bar])
		}
	}
	return img
}

func cloneImage(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

func drawText(canvas *image.RGBA, face font.Face, x, y int, text string) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.White,
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
