package videoconvert

import (
	"github.com/tauraamui/edgecam/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
)

const (
	lumaPlane = 0
	// chroma A is U/Cb, chroma B is V/Cr
	chromaAPlane = 1
	chromaBPlane = 2
)

// Convert combines a three plane 4:2:0 sensor buffer into a single NV21
// buffer: the luma plane followed by interleaved (B, A) chroma pairs.
// Every plane is read through its own row and pixel strides. Convert
// keeps no state and never retains the buffer's planes.
func Convert(buf *videoframe.SensorBuffer) (videoframe.PixelFrame, error) {
	if buf == nil {
		return videoframe.PixelFrame{}, xerror.Errorf("nil sensor buffer: %w", videoframe.ErrFormat)
	}
	if err := check(buf); err != nil {
		return videoframe.PixelFrame{}, err
	}

	w, h := buf.Width, buf.Height
	out := make([]byte, videoframe.NV21Size(w, h))

	copyLuma(out[:w*h], buf.Planes[lumaPlane], w, h)
	interleaveChroma(out[w*h:], buf.Planes[chromaAPlane], buf.Planes[chromaBPlane], w/2, h/2)

	return videoframe.PixelFrame{
		Seq:       buf.Seq,
		Timestamp: buf.Timestamp,
		Width:     w,
		Height:    h,
		Data:      out,
	}, nil
}

func copyLuma(dst []byte, p videoframe.Plane, w, h int) {
	if p.PixelStride == 1 && p.RowStride == w {
		copy(dst, p.Data[:w*h])
		return
	}
	for row := 0; row < h; row++ {
		src := p.Data[row*p.RowStride:]
		if p.PixelStride == 1 {
			copy(dst[row*w:(row+1)*w], src[:w])
			continue
		}
		for col := 0; col < w; col++ {
			dst[row*w+col] = src[col*p.PixelStride]
		}
	}
}

func interleaveChroma(dst []byte, a, b videoframe.Plane, cols, rows int) {
	offset := 0
	for row := 0; row < rows; row++ {
		aRow := a.Data[row*a.RowStride:]
		bRow := b.Data[row*b.RowStride:]
		for i := 0; i < cols; i++ {
			dst[offset] = bRow[i*b.PixelStride]
			dst[offset+1] = aRow[i*a.PixelStride]
			offset += 2
		}
	}
}

func check(buf *videoframe.SensorBuffer) error {
	if buf.Format != videoframe.FormatYUV420 {
		return xerror.Errorf("unsupported pixel format %s: %w", buf.Format, videoframe.ErrFormat)
	}
	w, h := buf.Width, buf.Height
	if w <= 0 || h <= 0 || w%2 != 0 || h%2 != 0 {
		return xerror.Errorf("dimensions %dx%d must be positive and even: %w", w, h, videoframe.ErrFormat)
	}
	if len(buf.Planes) < 3 {
		return xerror.Errorf("expected 3 planes, got %d: %w", len(buf.Planes), videoframe.ErrFormat)
	}

	if err := checkPlane("luma", buf.Planes[lumaPlane], w, h); err != nil {
		return err
	}
	if err := checkPlane("chroma A", buf.Planes[chromaAPlane], w/2, h/2); err != nil {
		return err
	}
	return checkPlane("chroma B", buf.Planes[chromaBPlane], w/2, h/2)
}

func checkPlane(name string, p videoframe.Plane, cols, rows int) error {
	if p.RowStride <= 0 || p.PixelStride <= 0 {
		return xerror.Errorf(
			"%s plane strides row=%d pixel=%d must be positive: %w", name, p.RowStride, p.PixelStride, videoframe.ErrFormat,
		)
	}
	span := (cols-1)*p.PixelStride + 1
	if p.RowStride < span && rows > 1 {
		return xerror.Errorf(
			"%s plane row stride %d shorter than row span %d: %w", name, p.RowStride, span, videoframe.ErrFormat,
		)
	}
	if need := (rows-1)*p.RowStride + span; len(p.Data) < need {
		return xerror.Errorf(
			"%s plane holds %d bytes, %d needed for %dx%d samples: %w", name, len(p.Data), need, cols, rows, videoframe.ErrFormat,
		)
	}
	return nil
}
