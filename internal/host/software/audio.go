package software

import (
	"sync"

	"github.com/GriffinCanCode/browser-source/internal/host"
)

// AudioRecorder is an audio output that keeps every packet it receives.
type AudioRecorder struct {
	mu      sync.Mutex
	packets []host.AudioData
	limit   int
}

// NewAudioRecorder keeps at most limit packets; 0 keeps all of them.
func NewAudioRecorder(limit int) *AudioRecorder {
	return &AudioRecorder{limit: limit}
}

func (r *AudioRecorder) OutputAudio(data host.AudioData) {
	planes := make([][]float32, len(data.Data))
	for i, p := range data.Data {
		planes[i] = append([]float32(nil), p...)
	}
	data.Data = planes

	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, data)
	if r.limit > 0 && len(r.packets) > r.limit {
		r.packets = r.packets[len(r.packets)-r.limit:]
	}
}

// Packets returns a copy of the recorded packets.
func (r *AudioRecorder) Packets() []host.AudioData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]host.AudioData(nil), r.packets...)
}

// Len returns the number of recorded packets.
func (r *AudioRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}
