// internal/browser/humanoid/clickmodel.go
package humanoid

import (
	"context"
	"math"
	"time"
)

// Click moves to the element matching selector, settles, and presses and
// releases the left button.
func (h *Humanoid) Click(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.click(ctx, selector)
}

func (h *Humanoid) click(ctx context.Context, selector string) error {
	from := h.pos
	if err := h.moveTo(ctx, selector); err != nil {
		return err
	}
	if err := h.executor.Sleep(ctx, h.terminalDuration(from.Dist(h.pos))); err != nil {
		return err
	}

	press := MouseEvent{Type: MousePress, X: h.pos.X, Y: h.pos.Y, Button: ButtonLeft, ClickCount: 1, Buttons: 1}
	if err := h.executor.DispatchMouseEvent(ctx, press); err != nil {
		return err
	}

	if err := h.executor.Sleep(ctx, h.clickHold()); err != nil {
		// Never leave the button down.
		_ = h.executor.DispatchMouseEvent(context.Background(), h.release())
		return err
	}
	return h.executor.DispatchMouseEvent(ctx, h.release())
}

func (h *Humanoid) release() MouseEvent {
	return MouseEvent{Type: MouseRelease, X: h.pos.X, Y: h.pos.Y, Button: ButtonLeft, ClickCount: 1}
}

// clickHold is how long the button stays down: normal around 60ms, clamped
// to the configured range.
func (h *Humanoid) clickHold() time.Duration {
	ms := 60 + h.rng.NormFloat64()*20
	ms = math.Max(h.cfg.ClickHoldMinMs, math.Min(h.cfg.ClickHoldMaxMs, ms))
	return time.Duration(ms * float64(time.Millisecond))
}

// terminalDuration is the verification pause between arriving and pressing,
// a fraction of the Fitts time for the move just made.
func (h *Humanoid) terminalDuration(distance float64) time.Duration {
	const width = 20.0
	mt := (h.cfg.FittsA + h.cfg.FittsB*math.Log2(1.0+distance/width)) * 0.25
	mt += mt * (h.rng.Float64()*0.2 - 0.1)
	return time.Duration(math.Max(0, mt) * float64(time.Millisecond))
}
