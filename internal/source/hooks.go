package source

import (
	"github.com/GriffinCanCode/browser-source/internal/engine"
)

// KeyInput is a host keyboard event.
type KeyInput struct {
	Text           string
	NativeVKey     int
	NativeScancode int
	Modifiers      uint32
}

// Hooks is the per-source contract the host drives. Create and destroy are
// served by Plugin.
type Hooks interface {
	Update(settings Settings)
	Tick()
	Render(x, y int) bool
	Width() int
	Height() int
	Properties() []Property

	SendMouseClick(ev engine.MouseEvent, button engine.MouseButton, mouseUp bool, clickCount int)
	SendMouseMove(ev engine.MouseEvent, mouseLeave bool)
	SendMouseWheel(ev engine.MouseEvent, deltaX, deltaY int)
	SendKeyClick(key KeyInput, keyUp bool)
	SendFocus(focus bool)

	Show()
	Hide()
	Activate()
	Deactivate()
	Refresh()

	// HandleJavaScriptEvent is the per-source external notification channel.
	HandleJavaScriptEvent(eventName, jsonString string)

	Destroy()
}

var _ Hooks = (*Source)(nil)
