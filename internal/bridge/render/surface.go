package render

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/host"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/monitoring"
)

// Surface turns painted BGRA frames into a host texture. The texture always
// has the size of the last painted frame.
//
// Lock order is graphics context first, then mu.
type Surface struct {
	graphics host.Graphics
	metrics  *monitoring.Metrics
	logger   *zap.Logger

	mu      sync.Mutex
	texture host.Texture
	width   int
	height  int
	closed  bool
}

// NewSurface creates an empty surface on g.
func NewSurface(g host.Graphics, metrics *monitoring.Metrics, logger *zap.Logger) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{graphics: g, metrics: metrics, logger: logger}
}

// Paint uploads a full frame. A size change destroys the texture before the
// new frame is uploaded. Paints after Close are dropped.
func (s *Surface) Paint(buffer []byte, width, height int) {
	s.graphics.Enter()
	defer s.graphics.Leave()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.texture != nil && (s.width != width || s.height != height) {
		s.texture.Destroy()
		s.texture = nil
		s.metrics.RecordTextureRecreation()
	}

	switch {
	case s.texture == nil && width > 0 && height > 0:
		tex, err := s.graphics.CreateTexture(width, height, host.FormatBGRA, buffer)
		if err != nil {
			s.logger.Warn("Failed to create texture",
				zap.Int("width", width), zap.Int("height", height), zap.Error(err))
			return
		}
		s.texture = tex
		s.width = width
		s.height = height
	case s.texture != nil:
		s.texture.SetImage(buffer, width*4, false)
	default:
		return
	}
	s.metrics.RecordFrame()
}

// Release destroys the texture.
func (s *Surface) Release() {
	s.graphics.Enter()
	defer s.graphics.Leave()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Close destroys the texture and refuses later paints. A paint that passed
// the validity gate before the owner started destroying lands here and is
// dropped instead of creating a texture nobody would release.
func (s *Surface) Close() {
	s.graphics.Enter()
	defer s.graphics.Leave()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.releaseLocked()
}

func (s *Surface) releaseLocked() {
	if s.texture != nil {
		s.texture.Destroy()
		s.texture = nil
	}
	s.width = 0
	s.height = 0
}

// Draw draws the texture scaled to width x height. The caller must hold the
// graphics context.
func (s *Surface) Draw(x, y, width, height int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.texture == nil {
		return false
	}
	s.graphics.DrawSprite(s.texture, x, y, width, height)
	return true
}

// WithTexture runs fn with the current texture inside the graphics context.
// fn is not called when there is no texture.
func (s *Surface) WithTexture(fn func(tex host.Texture)) bool {
	s.graphics.Enter()
	defer s.graphics.Leave()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.texture == nil {
		return false
	}
	fn(s.texture)
	return true
}

// Size returns the size of the last uploaded frame.
func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// HasTexture reports whether a texture is held.
func (s *Surface) HasTexture() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texture != nil
}
