// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Humanoid drives pointer and keyboard input with human timing: curved,
// eased cursor paths sized by Fitts's law and bursty typing with corrected
// slips. All methods serialize on one mutex since they share cursor state.
type Humanoid struct {
	mu       sync.Mutex
	cfg      Config
	logger   *zap.Logger
	executor Executor
	pos      Vector2D
	rng      *rand.Rand
	driftX   *pinkNoise
	driftY   *pinkNoise
}

// New creates a Humanoid over executor.
func New(cfg Config, logger *zap.Logger, executor Executor) *Humanoid {
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Humanoid{
		cfg:      cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rng,
		driftX:   newPinkNoise(rng, 12),
		driftY:   newPinkNoise(rng, 12),
	}
}

// Position reports where the cursor was last moved to.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// pause sleeps for a normally distributed time, never below a third of the
// mean. Callers hold h.mu.
func (h *Humanoid) pause(ctx context.Context, meanMs, stdDevMs float64) error {
	d := h.rng.NormFloat64()*stdDevMs + meanMs
	if floor := meanMs / 3; d < floor {
		d = floor
	}
	return h.executor.Sleep(ctx, time.Duration(d*float64(time.Millisecond)))
}
