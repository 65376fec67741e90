package headless

import (
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/net/html"
)

const (
	textMargin  = 8
	lineSpacing = 1.4
)

// painter renders the visible text of a document into a premultiplied BGRA
// frame over a transparent background.
type painter struct {
	r, g, b float64
}

func newPainter() *painter {
	return &painter{r: 1, g: 1, b: 1}
}

// Paint returns a width*height*4 BGRA buffer.
func (p *painter) Paint(root *html.Node, width, height int) []byte {
	if width <= 0 || height <= 0 {
		return nil
	}

	dc := gg.NewContext(width, height)
	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	if root != nil {
		if text := visibleText(root); text != "" {
			dc.SetRGB(p.r, p.g, p.b)
			wrap := float64(width - 2*textMargin)
			if wrap < 1 {
				wrap = 1
			}
			dc.DrawStringWrapped(text, textMargin, textMargin, 0, 0, wrap, lineSpacing, gg.AlignLeft)
		}
	}

	return toBGRA(dc.Image())
}

func toBGRA(img image.Image) []byte {
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
	}

	b := rgba.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		dst := out[y*w*4 : (y+1)*w*4]
		for x := 0; x < w*4; x += 4 {
			dst[x+0] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x+0]
			dst[x+3] = src[x+3]
		}
	}
	return out
}
