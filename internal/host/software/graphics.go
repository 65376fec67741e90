package software

import (
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/GriffinCanCode/browser-source/internal/host"
)

var (
	ErrInvalidSize   = errors.New("invalid texture size")
	ErrInvalidFormat = errors.New("unsupported texture format")
	ErrShortBuffer   = errors.New("pixel buffer too short")
)

// Graphics is an in-memory graphics context. Textures are BGRA byte slices
// and DrawSprite composites them onto an RGBA output canvas.
type Graphics struct {
	mu      sync.Mutex
	entered atomic.Bool
	canvas  *image.RGBA

	live       sync.Map
	created    atomic.Int64
	destroyed  atomic.Int64
	violations atomic.Int64
}

// NewGraphics creates a context with a width x height output canvas.
func NewGraphics(width, height int) *Graphics {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Graphics{canvas: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (g *Graphics) Enter() {
	g.mu.Lock()
	g.entered.Store(true)
}

func (g *Graphics) Leave() {
	g.entered.Store(false)
	g.mu.Unlock()
}

// CreateTexture allocates a texture, optionally initialized from BGRA data.
func (g *Graphics) CreateTexture(width, height int, format host.TextureFormat, data []byte) (host.Texture, error) {
	g.check()
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidSize
	}
	if format != host.FormatBGRA {
		return nil, ErrInvalidFormat
	}

	tex := &Texture{
		g:      g,
		width:  width,
		height: height,
		pix:    make([]byte, width*height*4),
	}
	if data != nil {
		if len(data) < len(tex.pix) {
			return nil, ErrShortBuffer
		}
		copy(tex.pix, data)
	}

	g.live.Store(tex, struct{}{})
	g.created.Add(1)
	return tex, nil
}

// DrawSprite scales tex onto the output canvas.
func (g *Graphics) DrawSprite(tex host.Texture, x, y, width, height int) {
	g.check()
	t, ok := tex.(*Texture)
	if !ok || t.destroyed {
		return
	}
	if width <= 0 {
		width = t.width
	}
	if height <= 0 {
		height = t.height
	}

	src := t.image()
	dst := image.Rect(x, y, x+width, y+height)
	draw.BiLinear.Scale(g.canvas, dst, src, src.Bounds(), draw.Over, nil)
}

// Clear fills the canvas with c.
func (g *Graphics) Clear(c color.Color) {
	g.Enter()
	defer g.Leave()
	draw.Draw(g.canvas, g.canvas.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// Snapshot returns a copy of the output canvas.
func (g *Graphics) Snapshot() *image.RGBA {
	g.Enter()
	defer g.Leave()
	out := image.NewRGBA(g.canvas.Bounds())
	copy(out.Pix, g.canvas.Pix)
	return out
}

// LiveTextures counts textures created and not yet destroyed.
func (g *Graphics) LiveTextures() int {
	n := 0
	g.live.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Created returns the number of textures ever created.
func (g *Graphics) Created() int64 { return g.created.Load() }

// Destroyed returns the number of textures ever destroyed.
func (g *Graphics) Destroyed() int64 { return g.destroyed.Load() }

// Violations counts texture operations made outside Enter/Leave.
func (g *Graphics) Violations() int64 { return g.violations.Load() }

func (g *Graphics) check() {
	if !g.entered.Load() {
		g.violations.Add(1)
	}
}

// Texture is a BGRA texture owned by a Graphics context.
type Texture struct {
	g         *Graphics
	width     int
	height    int
	pix       []byte
	destroyed bool
}

func (t *Texture) Width() int  { return t.width }
func (t *Texture) Height() int { return t.height }

func (t *Texture) SetImage(data []byte, linesize int, flip bool) {
	t.g.check()
	if t.destroyed {
		return
	}
	row := t.width * 4
	if linesize < row {
		linesize = row
	}
	for y := 0; y < t.height; y++ {
		srcY := y
		if flip {
			srcY = t.height - 1 - y
		}
		start := srcY * linesize
		if start+row > len(data) {
			return
		}
		copy(t.pix[y*row:(y+1)*row], data[start:start+row])
	}
}

func (t *Texture) Destroy() {
	t.g.check()
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.pix = nil
	t.g.live.Delete(t)
	t.g.destroyed.Add(1)
}

// Destroyed reports whether Destroy was called.
func (t *Texture) Destroyed() bool { return t.destroyed }

// Image converts the texture to RGBA.
func (t *Texture) Image() *image.RGBA {
	return t.image()
}

func (t *Texture) image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.width, t.height))
	for i := 0; i+3 < len(t.pix); i += 4 {
		img.Pix[i] = t.pix[i+2]
		img.Pix[i+1] = t.pix[i+1]
		img.Pix[i+2] = t.pix[i]
		img.Pix[i+3] = t.pix[i+3]
	}
	return img
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return gg.NewContextForImage(img).EncodePNG(w)
}
