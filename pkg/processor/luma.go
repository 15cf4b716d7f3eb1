package processor

import (
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const defaultEdgeThreshold = 160

// Luma renders the luma plane as greyscale. In transformed mode it draws
// white wherever the Sobel gradient magnitude reaches Threshold and black
// everywhere else, border pixels included.
type Luma struct {
	Threshold int
}

func NewLuma() Luma {
	return Luma{Threshold: defaultEdgeThreshold}
}

func (l Luma) Process(nv21 []byte, w, h int, mode Mode) ([]byte, error) {
	if w <= 0 || h <= 0 || len(nv21) != videoframe.NV21Size(w, h) {
		return nil, xerror.Errorf("luma processor given %d bytes for %dx%d frame", len(nv21), w, h)
	}

	luma := nv21[:w*h]
	if mode == ModeTransformed {
		luma = l.edges(luma, w, h)
	}

	out := make([]byte, videoframe.RGBASize(w, h))
	for i, y := range luma {
		o := i * 4
		out[o], out[o+1], out[o+2], out[o+3] = y, y, y, 0xFF
	}
	return out, nil
}

func (l Luma) edges(luma []byte, w, h int) []byte {
	threshold := l.Threshold
	if threshold <= 0 {
		threshold = defaultEdgeThreshold
	}

	out := make([]byte, len(luma))
	at := func(x, y int) int { return int(luma[y*w+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if abs(gx)+abs(gy) >= threshold {
				out[y*w+x] = 0xFF
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
