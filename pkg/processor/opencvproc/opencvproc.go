package opencvproc

import (
	"sync"

	"github.com/tauraamui/edgecam/pkg/processor"
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"gocv.io/x/gocv"
)

const (
	cannyLowThreshold  = 80
	cannyHighThreshold = 200
)

// Processor converts NV21 to greyscale with OpenCV, running Canny edge
// detection over it in transformed mode.
type Processor struct {
	mu    sync.Mutex
	bgr   gocv.Mat
	gray  gocv.Mat
	edges gocv.Mat
	rgba  gocv.Mat
}

func New() *Processor {
	return &Processor{
		bgr:   gocv.NewMat(),
		gray:  gocv.NewMat(),
		edges: gocv.NewMat(),
		rgba:  gocv.NewMat(),
	}
}

var _ processor.Processor = (*Processor)(nil)

func (p *Processor) Process(nv21 []byte, w, h int, mode processor.Mode) ([]byte, error) {
	if w <= 0 || h <= 0 || len(nv21) != videoframe.NV21Size(w, h) {
		return nil, xerror.Errorf("OpenCV processor given %d bytes for %dx%d frame", len(nv21), w, h)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	yuv, err := gocv.NewMatFromBytes(h+h/2, w, gocv.MatTypeCV8UC1, nv21)
	if err != nil {
		return nil, xerror.Errorf("unable to load NV21 frame: %w", err)
	}
	defer yuv.Close()

	gocv.CvtColor(yuv, &p.bgr, gocv.ColorYUVToBGRNV21)
	gocv.CvtColor(p.bgr, &p.gray, gocv.ColorBGRToGray)

	out := p.gray
	if mode == processor.ModeTransformed {
		gocv.Canny(p.gray, &p.edges, cannyLowThreshold, cannyHighThreshold)
		out = p.edges
	}
	gocv.CvtColor(out, &p.rgba, gocv.ColorGrayToBGRA)

	data := p.rgba.ToBytes()
	if len(data) != videoframe.RGBASize(w, h) {
		return nil, xerror.Errorf("OpenCV produced %d bytes for %dx%d frame", len(data), w, h)
	}
	return data, nil
}

func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range []*gocv.Mat{&p.bgr, &p.gray, &p.edges, &p.rgba} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return nil
}
