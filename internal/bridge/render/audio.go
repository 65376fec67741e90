package render

import (
	"github.com/GriffinCanCode/browser-source/internal/engine"
	"github.com/GriffinCanCode/browser-source/internal/host"
)

// FramesPerBuffer is the audio buffer size requested from the engine.
const FramesPerBuffer = 1024

// Timestamps from the engine are in milliseconds, the host wants nanoseconds.
const ptsToHost = 1_000_000

var speakerLayouts = map[engine.ChannelLayout]host.SpeakerLayout{
	engine.ChannelLayoutMono:        host.SpeakersMono,
	engine.ChannelLayoutStereo:      host.SpeakersStereo,
	engine.ChannelLayout2Point1:     host.Speakers2Point1,
	engine.ChannelLayout2_1:         host.Speakers2Point1,
	engine.ChannelLayout2_2:         host.Speakers4Point0,
	engine.ChannelLayoutQuad:        host.Speakers4Point0,
	engine.ChannelLayout4_0:         host.Speakers4Point0,
	engine.ChannelLayout4_1:         host.Speakers4Point1,
	engine.ChannelLayout5_1:         host.Speakers5Point1,
	engine.ChannelLayout5_1Back:     host.Speakers5Point1,
	engine.ChannelLayout7_1:         host.Speakers7Point1,
	engine.ChannelLayout7_1WideBack: host.Speakers7Point1,
	engine.ChannelLayout7_1Wide:     host.Speakers7Point1,
}

// SpeakerLayout maps an engine channel layout to the host speaker layout.
// Unmapped layouts are SpeakersUnknown.
func SpeakerLayout(layout engine.ChannelLayout) host.SpeakerLayout {
	if s, ok := speakerLayouts[layout]; ok {
		return s
	}
	return host.SpeakersUnknown
}

// SpeakerLayoutForChannels maps a host channel count through the layout the
// engine is asked to produce for it.
func SpeakerLayoutForChannels(channels int) host.SpeakerLayout {
	return SpeakerLayout(engine.LayoutForChannels(channels))
}

type audioStream struct {
	channels        int
	layout          engine.ChannelLayout
	sampleRate      int
	framesPerBuffer int
}
