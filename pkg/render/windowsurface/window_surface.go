package windowsurface

import (
	"image"
	"sync"

	"github.com/tauraamui/edgecam/pkg/log"
	"github.com/tauraamui/edgecam/pkg/render"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

// Surface shows frames in an OpenCV window. Keys pressed while the window
// has focus are forwarded on Keys.
//
// HighGUI must be driven from a single OS thread, so the window is only
// opened on the first draw and is destroyed by Unbind, both of which
// the render process calls from its locked goroutine. On macOS the
// toolkit additionally insists on the process main thread, which a
// locked goroutine does not give, so windows are not supported there.
type Surface struct {
	mu       sync.Mutex
	title    string
	window   *gocv.Window
	viewport image.Point
	texture  gocv.Mat
	bgr      gocv.Mat
	scaled   gocv.Mat
	keys     chan int
	released bool
}

var _ render.ThreadBound = (*Surface)(nil)

func New(title string, w, h int) *Surface {
	return &Surface{
		title:    title,
		viewport: image.Pt(w, h),
		texture:  gocv.NewMat(),
		bgr:      gocv.NewMat(),
		scaled:   gocv.NewMat(),
		keys:     make(chan int, 8),
	}
}

func (s *Surface) AllocateTexture(w, h int) error {
	if w <= 0 || h <= 0 {
		return xerror.Errorf("invalid texture size %dx%d", w, h)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texture.Close()
	s.texture = gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC4)
	return nil
}

func (s *Surface) UploadTexture(w, h int, rgba []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.texture.Cols() != w || s.texture.Rows() != h {
		return xerror.Errorf("upload of %dx%d into %dx%d texture", w, h, s.texture.Cols(), s.texture.Rows())
	}
	m, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, rgba)
	if err != nil {
		return xerror.Errorf("unable to load texture bytes: %w", err)
	}
	defer m.Close()
	m.CopyTo(&s.texture)
	return nil
}

func (s *Surface) DrawQuad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return xerror.New("window already closed")
	}
	if s.window == nil {
		s.window = gocv.NewWindow(s.title)
	}

	if s.texture.Empty() {
		blank := gocv.NewMatWithSize(s.viewport.Y, s.viewport.X, gocv.MatTypeCV8UC3)
		defer blank.Close()
		s.window.IMShow(blank)
	} else {
		gocv.CvtColor(s.texture, &s.bgr, gocv.ColorRGBAToBGR)
		gocv.Resize(s.bgr, &s.scaled, s.viewport, 0, 0, gocv.InterpolationLinear)
		s.window.IMShow(s.scaled)
	}

	if key := s.window.WaitKey(1); key >= 0 {
		select {
		case s.keys <- key:
		default:
		}
	}
	return nil
}

func (s *Surface) Keys() <-chan int {
	return s.keys
}

// Unbind destroys the window. It must run on the thread which drew to it.
func (s *Surface) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == nil {
		return
	}
	if err := s.window.Close(); err != nil {
		log.Warn("Unable to close window [%s]: %v", s.title, err)
	}
	s.window = nil
}

// Close frees the texture storage once the render process has stopped.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.texture.Close()
	s.bgr.Close()
	s.scaled.Close()
	if s.window != nil {
		return xerror.New("window still open, render process was not stopped")
	}
	return nil
}
