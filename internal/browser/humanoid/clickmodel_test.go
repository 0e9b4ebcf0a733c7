// internal/browser/humanoid/clickmodel_test.go
package humanoid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickSequence(t *testing.T) {
	exec := newMockExecutor()
	h := newTestHumanoid(t, exec, 21)

	require.NoError(t, h.Click(context.Background(), "#signin-continue-btn"))

	events := exec.mouseEvents()
	require.GreaterOrEqual(t, len(events), 4)
	press, release := events[len(events)-2], events[len(events)-1]

	for _, ev := range events[:len(events)-2] {
		assert.Equal(t, MouseMove, ev.Type)
	}
	assert.Equal(t, MousePress, press.Type)
	assert.Equal(t, ButtonLeft, press.Button)
	assert.Equal(t, int64(1), press.Buttons)
	assert.Equal(t, 1, press.ClickCount)

	assert.Equal(t, MouseRelease, release.Type)
	assert.Equal(t, int64(0), release.Buttons)
	assert.Equal(t, press.X, release.X)
	assert.Equal(t, press.Y, release.Y)
	inside(t, exec.boxes["#signin-continue-btn"], Vector2D{X: press.X, Y: press.Y})
}

func TestClickHoldIsClamped(t *testing.T) {
	exec := newMockExecutor()
	h := newTestHumanoid(t, exec, 4)
	h.cfg.ClickHoldMinMs = 80
	h.cfg.ClickHoldMaxMs = 80

	require.NoError(t, h.Click(context.Background(), "#signin-continue-btn"))
	sleeps := exec.sleepDurations()
	assert.Equal(t, 80*time.Millisecond, sleeps[len(sleeps)-1])
}

func TestClickCancelledWhileHeldReleases(t *testing.T) {
	exec := newMockExecutor()
	h := newTestHumanoid(t, exec, 4)
	h.cfg.ClickHoldMinMs = 77
	h.cfg.ClickHoldMaxMs = 77

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.onSleep = func(_ int, d time.Duration) {
		if d == 77*time.Millisecond {
			cancel()
		}
	}

	err := h.Click(ctx, "#signin-continue-btn")
	assert.ErrorIs(t, err, context.Canceled)

	events := exec.mouseEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, MouseRelease, events[len(events)-1].Type)
}

func TestClickMissingElement(t *testing.T) {
	exec := newMockExecutor()
	h := newTestHumanoid(t, exec, 1)

	require.Error(t, h.Click(context.Background(), "#nope"))
	assert.Empty(t, exec.mouseEvents())
}
