// internal/browser/humanoid/movement.go
package humanoid

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// MoveTo moves the cursor to a point inside the element matching selector.
func (h *Humanoid) MoveTo(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveTo(ctx, selector)
}

func (h *Humanoid) moveTo(ctx context.Context, selector string) error {
	box, err := h.executor.ElementBox(ctx, selector)
	if err != nil {
		return fmt.Errorf("humanoid: failed to locate %q: %w", selector, err)
	}
	if box.Width <= 0 || box.Height <= 0 {
		return fmt.Errorf("humanoid: element %q has no visible area", selector)
	}
	return h.trajectory(ctx, h.targetPoint(box))
}

// targetPoint picks a point near the centre of box, normally distributed
// over its inner 90% and kept a pixel inside the border.
func (h *Humanoid) targetPoint(box Box) Vector2D {
	center := box.Center()
	x := center.X + h.rng.NormFloat64()*box.Width*0.9/6.0
	y := center.Y + h.rng.NormFloat64()*box.Height*0.9/6.0

	minX, maxX := box.X+1, box.X+box.Width-1
	minY, maxY := box.Y+1, box.Y+box.Height-1
	if minX > maxX {
		minX, maxX = center.X, center.X
	}
	if minY > maxY {
		minY, maxY = center.Y, center.Y
	}
	return Vector2D{
		X: math.Max(minX, math.Min(maxX, x)),
		Y: math.Max(minY, math.Min(maxY, y)),
	}
}

// easeInOutCubic accelerates then decelerates over t in [0, 1].
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// fittsDuration is the movement time for a distance, with +/-15% jitter.
func (h *Humanoid) fittsDuration(distance float64) time.Duration {
	const width = 30.0
	mt := h.cfg.FittsA + h.cfg.FittsB*math.Log2(1.0+distance/width)
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	return time.Duration(mt * float64(time.Millisecond))
}

// idealPath samples a cubic Bezier from start to end whose control points
// bow out to one side, like a wrist pivoting.
func (h *Humanoid) idealPath(start, end Vector2D, steps int) []Vector2D {
	span := end.Sub(start)
	dist := span.Mag()
	if dist < 1.0 || steps <= 1 {
		return []Vector2D{end}
	}

	dir := span.Normalize()
	side := dir.Perp()
	p1 := start.Add(dir.Mul(dist / 3)).Add(side.Mul(h.rng.NormFloat64() * dist * 0.1))
	p2 := start.Add(dir.Mul(dist * 2 / 3)).Add(side.Mul(h.rng.NormFloat64() * dist * 0.05))

	path := make([]Vector2D, steps)
	for i := range path {
		t := float64(i) / float64(steps-1)
		u := 1 - t
		path[i] = start.Mul(u * u * u).
			Add(p1.Mul(3 * u * u * t)).
			Add(p2.Mul(3 * u * t * t)).
			Add(end.Mul(t * t * t))
	}
	return path
}

// trajectory moves the cursor from its current position to end. Every
// sample but the last carries drift and jitter; the last lands on end.
func (h *Humanoid) trajectory(ctx context.Context, end Vector2D) error {
	start := h.pos
	duration := h.fittsDuration(start.Dist(end))
	steps := int(duration.Seconds() * 100)
	if steps < 2 {
		steps = 2
	}

	path := h.idealPath(start, end, steps)
	last := len(path) - 1
	var elapsed time.Duration
	for i := range path {
		if err := ctx.Err(); err != nil {
			return err
		}

		eased := 1.0
		if last > 0 {
			eased = easeInOutCubic(float64(i) / float64(last))
		}
		point := path[int(eased*float64(last))]
		if i < last {
			point = h.perturb(point)
		}

		if due := time.Duration(eased * float64(duration)); due > elapsed {
			if err := h.executor.Sleep(ctx, due-elapsed); err != nil {
				return err
			}
			elapsed = due
		}

		if err := h.executor.DispatchMouseEvent(ctx, MouseEvent{Type: MouseMove, X: point.X, Y: point.Y, Button: ButtonNone}); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("Failed to dispatch mouse move", zap.Error(err))
			}
			return err
		}
		h.pos = point
	}
	return nil
}

func (h *Humanoid) perturb(p Vector2D) Vector2D {
	drift := Vector2D{X: h.driftX.next(), Y: h.driftY.next()}.Mul(h.cfg.DriftAmplitude)
	jitter := Vector2D{X: h.rng.NormFloat64(), Y: h.rng.NormFloat64()}.Mul(h.cfg.GaussianStrength)
	return p.Add(drift).Add(jitter)
}
