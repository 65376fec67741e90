package engine

// ChannelLayout is the engine's speaker arrangement of an audio stream.
type ChannelLayout int

const (
	ChannelLayoutNone ChannelLayout = iota
	ChannelLayoutUnsupported
	ChannelLayoutMono
	ChannelLayoutStereo
	ChannelLayout2_1
	ChannelLayoutSurround
	ChannelLayout4_0
	ChannelLayout2_2
	ChannelLayoutQuad
	ChannelLayout5_0
	ChannelLayout5_1
	ChannelLayout5_0Back
	ChannelLayout5_1Back
	ChannelLayout7_0
	ChannelLayout7_1
	ChannelLayout7_1Wide
	ChannelLayoutStereoDownmix
	ChannelLayout2Point1
	ChannelLayout3_1
	ChannelLayout4_1
	ChannelLayout6_0
	ChannelLayout6_0Front
	ChannelLayoutHexagonal
	ChannelLayout6_1
	ChannelLayout6_1Back
	ChannelLayout6_1Front
	ChannelLayout7_0Front
	ChannelLayout7_1WideBack
	ChannelLayoutOctagonal
	ChannelLayoutDiscrete
)

// LayoutForChannels picks the layout the engine should produce for a host
// mixing n channels.
func LayoutForChannels(n int) ChannelLayout {
	switch n {
	case 1:
		return ChannelLayoutMono
	case 2:
		return ChannelLayoutStereo
	case 3:
		return ChannelLayout2_1
	case 4:
		return ChannelLayout4_0
	case 5:
		return ChannelLayout4_1
	case 6:
		return ChannelLayout5_1
	case 8:
		return ChannelLayout7_1
	default:
		return ChannelLayoutUnsupported
	}
}
