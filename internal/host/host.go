package host

// TextureFormat is the pixel layout of a texture.
type TextureFormat int

const (
	FormatBGRA TextureFormat = iota
)

// Texture is a GPU-resident image. Every method must be called between
// Graphics.Enter and Graphics.Leave.
type Texture interface {
	Width() int
	Height() int
	// SetImage replaces the whole image. linesize is the byte stride of data.
	SetImage(data []byte, linesize int, flip bool)
	Destroy()
}

// Graphics is the host's rendering context. Enter acquires the context for
// the calling goroutine and Leave releases it.
type Graphics interface {
	Enter()
	Leave()
	CreateTexture(width, height int, format TextureFormat, data []byte) (Texture, error)
	// DrawSprite draws tex scaled to width x height at the current position.
	DrawSprite(tex Texture, x, y, width, height int)
}

// SpeakerLayout is the host's speaker arrangement.
type SpeakerLayout int

const (
	SpeakersUnknown SpeakerLayout = iota
	SpeakersMono
	SpeakersStereo
	Speakers2Point1
	Speakers4Point0
	Speakers4Point1
	Speakers5Point1
	Speakers7Point1
)

// Channels returns the number of channels carried by the layout.
func (s SpeakerLayout) Channels() int {
	switch s {
	case SpeakersMono:
		return 1
	case SpeakersStereo:
		return 2
	case Speakers2Point1:
		return 3
	case Speakers4Point0:
		return 4
	case Speakers4Point1:
		return 5
	case Speakers5Point1:
		return 6
	case Speakers7Point1:
		return 8
	default:
		return 0
	}
}

func (s SpeakerLayout) String() string {
	switch s {
	case SpeakersMono:
		return "mono"
	case SpeakersStereo:
		return "stereo"
	case Speakers2Point1:
		return "2.1"
	case Speakers4Point0:
		return "4.0"
	case Speakers4Point1:
		return "4.1"
	case Speakers5Point1:
		return "5.1"
	case Speakers7Point1:
		return "7.1"
	default:
		return "unknown"
	}
}

// AudioFormat is the sample format of published audio.
type AudioFormat int

const (
	AudioFormatUnknown AudioFormat = iota
	AudioFormatFloatPlanar
)

// AudioData is one packet of source audio. Timestamp is in nanoseconds.
type AudioData struct {
	Data       [][]float32
	Frames     int
	Speakers   SpeakerLayout
	Format     AudioFormat
	SampleRate int
	Timestamp  uint64
}

// AudioOutput receives a source's audio.
type AudioOutput interface {
	OutputAudio(data AudioData)
}

// AudioInfo describes the host's audio mix.
type AudioInfo struct {
	Channels   int
	SampleRate int
}
