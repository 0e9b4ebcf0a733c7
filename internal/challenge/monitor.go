// Package challenge detects anti-automation challenge pages and stalls until
// they are solved.
package challenge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ebaybot/internal/failure"
)

// State is derived from the current location.
type State int

const (
	Clear State = iota
	Challenged
)

func (s State) String() string {
	if s == Challenged {
		return "challenged"
	}
	return "clear"
}

// DefaultMarker and DefaultInterval match the challenge page of the sign-in flow.
const (
	DefaultMarker   = "captcha"
	DefaultInterval = 2 * time.Second
)

// Locator reports the browser's current location.
type Locator interface {
	CurrentURL(ctx context.Context) (string, error)
}

// Classify reports Challenged when location contains marker, ignoring case.
func Classify(location, marker string) State {
	if strings.Contains(strings.ToLower(location), strings.ToLower(marker)) {
		return Challenged
	}
	return Clear
}

// Monitor polls the location while a challenge is shown.
type Monitor struct {
	locator  Locator
	marker   string
	interval time.Duration
	// timeout of zero waits until ctx is done.
	timeout time.Duration
	logger  *zap.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMarker overrides the challenge marker.
func WithMarker(marker string) Option {
	return func(m *Monitor) { m.marker = marker }
}

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithTimeout bounds the whole wait.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.timeout = d }
}

// NewMonitor creates a Monitor reading locations from locator.
func NewMonitor(locator Locator, logger *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		locator:  locator,
		marker:   DefaultMarker,
		interval: DefaultInterval,
		logger:   logger.Named("challenge"),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wait returns at once when no challenge is shown. Otherwise it samples the
// location every interval and returns when the location has moved away from
// the challenge page and no longer carries the marker. Cancellation or the
// configured timeout ends the wait with ChallengeTimeout.
func (m *Monitor) Wait(ctx context.Context) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	entry, err := m.locator.CurrentURL(ctx)
	if err != nil {
		return m.sampleErr(ctx, err)
	}
	if Classify(entry, m.marker) == Clear {
		return nil
	}

	m.logger.Warn("Challenge detected, waiting for it to be solved", zap.String("location", entry))
	started := time.Now()

	for polls := 1; ; polls++ {
		if err := m.sleep(ctx, m.interval); err != nil {
			return failure.New(failure.CodeChallengeTimeout, "wait", err)
		}
		current, err := m.locator.CurrentURL(ctx)
		if err != nil {
			return m.sampleErr(ctx, err)
		}
		if current != entry && Classify(current, m.marker) == Clear {
			m.logger.Info("Challenge cleared",
				zap.String("location", current),
				zap.Int("polls", polls),
				zap.Duration("waited", time.Since(started)),
			)
			return nil
		}
		m.logger.Debug("Challenge still present", zap.String("location", current), zap.Int("polls", polls))
	}
}

func (m *Monitor) sampleErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return failure.New(failure.CodeChallengeTimeout, "sample", ctx.Err())
	}
	return fmt.Errorf("failed to sample location: %w", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
