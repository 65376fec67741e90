package software

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/browser-source/internal/host"
)

func bgra(w, h int, b, g, r, a byte) []byte {
	buf := make([]byte, w*h*4)
	for i := 0; i < len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = b, g, r, a
	}
	return buf
}

func TestTextureLifecycle(t *testing.T) {
	g := NewGraphics(4, 4)

	g.Enter()
	tex, err := g.CreateTexture(2, 2, host.FormatBGRA, bgra(2, 2, 255, 0, 0, 255))
	require.NoError(t, err)
	assert.Equal(t, 1, g.LiveTextures())

	img := tex.(*Texture).Image()
	assert.Equal(t, color.RGBA{R: 0, G: 0, B: 255, A: 255}, img.RGBAAt(0, 0))

	tex.SetImage(bgra(2, 2, 0, 0, 255, 255), 8, false)
	img = tex.(*Texture).Image()
	assert.Equal(t, color.RGBA{R: 255, G: 0, B: 0, A: 255}, img.RGBAAt(1, 1))

	tex.Destroy()
	tex.Destroy()
	g.Leave()

	assert.Equal(t, 0, g.LiveTextures())
	assert.Equal(t, int64(1), g.Created())
	assert.Equal(t, int64(1), g.Destroyed())
	assert.Zero(t, g.Violations())
}

func TestCreateTextureErrors(t *testing.T) {
	g := NewGraphics(1, 1)
	g.Enter()
	defer g.Leave()

	_, err := g.CreateTexture(0, 1, host.FormatBGRA, nil)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = g.CreateTexture(1, 1, host.TextureFormat(9), nil)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = g.CreateTexture(2, 2, host.FormatBGRA, make([]byte, 3))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestViolationsOutsideContext(t *testing.T) {
	g := NewGraphics(1, 1)
	_, err := g.CreateTexture(1, 1, host.FormatBGRA, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Violations())
}

func TestDrawSpriteAndSnapshot(t *testing.T) {
	g := NewGraphics(4, 4)
	g.Clear(color.RGBA{A: 255})

	g.Enter()
	tex, err := g.CreateTexture(2, 2, host.FormatBGRA, bgra(2, 2, 0, 255, 0, 255))
	require.NoError(t, err)
	g.DrawSprite(tex, 0, 0, 4, 4)
	g.Leave()

	snap := g.Snapshot()
	assert.Equal(t, color.RGBA{G: 255, A: 255}, snap.RGBAAt(2, 2))

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, snap))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4, decoded.Bounds().Dx())
}

func TestAudioRecorder(t *testing.T) {
	r := NewAudioRecorder(2)
	plane := []float32{0.5}
	for i := 0; i < 3; i++ {
		r.OutputAudio(host.AudioData{Data: [][]float32{plane}, Frames: 1, Timestamp: uint64(i)})
	}
	plane[0] = 0

	packets := r.Packets()
	require.Len(t, packets, 2)
	assert.Equal(t, uint64(1), packets[0].Timestamp)
	assert.Equal(t, float32(0.5), packets[1].Data[0][0], "samples are copied")
}

func TestSpeakerLayoutChannels(t *testing.T) {
	assert.Equal(t, 3, host.Speakers2Point1.Channels())
	assert.Equal(t, 0, host.SpeakersUnknown.Channels())
	assert.Equal(t, "5.1", host.Speakers5Point1.String())
}
