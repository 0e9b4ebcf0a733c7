// internal/browser/humanoid/interface.go
package humanoid

import (
	"context"
	"time"
)

// MouseEventType names a pointer event. Values match the CDP Input domain.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton names a pointer button. Values match the CDP Input domain.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEvent is one synthetic pointer event in viewport coordinates.
type MouseEvent struct {
	Type       MouseEventType
	X, Y       float64
	Button     MouseButton
	ClickCount int
	// Buttons is the pressed-button bitfield after the event.
	Buttons int64
}

// Box is an element's border box in viewport coordinates.
type Box struct {
	X, Y, Width, Height float64
}

// Center returns the middle of the box.
func (b Box) Center() Vector2D {
	return Vector2D{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Executor is the low-level input surface the model drives.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, ev MouseEvent) error
	// SendKeys types keys into the focused element.
	SendKeys(ctx context.Context, keys string) error
	// ElementBox scrolls the first element matching selector into view and
	// returns its box.
	ElementBox(ctx context.Context, selector string) (Box, error)
}

// KeyBackspace erases the previous character when passed to SendKeys.
const KeyBackspace = "\b"
