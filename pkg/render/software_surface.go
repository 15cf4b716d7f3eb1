package render

import (
	"image"
	"image/png"
	"sync"

	"github.com/spf13/afero"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/draw"
)

// SoftwareSurface renders into an in-memory framebuffer the size of the
// viewport, scaling the texture with bilinear filtering.
type SoftwareSurface struct {
	mu          sync.Mutex
	framebuffer *image.RGBA
	texture     *image.RGBA
	draws       uint64
}

func NewSoftwareSurface(w, h int) *SoftwareSurface {
	return &SoftwareSurface{framebuffer: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (s *SoftwareSurface) AllocateTexture(w, h int) error {
	if w <= 0 || h <= 0 {
		return xerror.Errorf("invalid texture size %dx%d", w, h)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texture = image.NewRGBA(image.Rect(0, 0, w, h))
	return nil
}

func (s *SoftwareSurface) UploadTexture(w, h int, rgba []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.texture == nil {
		return xerror.New("no texture allocated")
	}
	if b := s.texture.Bounds(); b.Dx() != w || b.Dy() != h {
		return xerror.Errorf("upload of %dx%d into %dx%d texture", w, h, b.Dx(), b.Dy())
	}
	if len(rgba) != len(s.texture.Pix) {
		return xerror.Errorf("upload of %d bytes into %d byte texture", len(rgba), len(s.texture.Pix))
	}
	copy(s.texture.Pix, rgba)
	return nil
}

func (s *SoftwareSurface) DrawQuad() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draws++
	if s.texture == nil {
		draw.Draw(s.framebuffer, s.framebuffer.Bounds(), image.Transparent, image.Point{}, draw.Src)
		return nil
	}
	draw.BiLinear.Scale(s.framebuffer, s.framebuffer.Bounds(), s.texture, s.texture.Bounds(), draw.Src, nil)
	return nil
}

func (s *SoftwareSurface) Draws() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws
}

// Snapshot copies the framebuffer as of the last draw.
func (s *SoftwareSurface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.framebuffer.Bounds())
	copy(out.Pix, s.framebuffer.Pix)
	return out
}

func (s *SoftwareSurface) WritePNG(fs afero.Fs, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return xerror.Errorf("unable to create snapshot file %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, s.Snapshot()); err != nil {
		return xerror.Errorf("unable to encode snapshot: %w", err)
	}
	return nil
}
