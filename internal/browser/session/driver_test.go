// internal/browser/session/driver_test.go
package session

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/ebaybot/internal/browser/humanoid"
)

// newCapturingDriver returns a driver whose actions are recorded rather than
// sent to a browser.
func newCapturingDriver(t *testing.T, wait time.Duration, fn func(ctx context.Context, actions ...chromedp.Action) error) *cdpDriver {
	t.Helper()
	d := newCDPDriver(context.Background(), wait, zaptest.NewLogger(t))
	d.runActionsFunc = fn
	return d
}

func TestCDPDriver(t *testing.T) {
	t.Run("navigate issues one action", func(t *testing.T) {
		var captured []chromedp.Action
		d := newCapturingDriver(t, time.Second, func(ctx context.Context, actions ...chromedp.Action) error {
			captured = actions
			return nil
		})

		require.NoError(t, d.Navigate(context.Background(), "https://signin.ebay.com/signin/"))
		assert.Len(t, captured, 1)
	})

	t.Run("navigate error is wrapped", func(t *testing.T) {
		d := newCapturingDriver(t, time.Second, func(ctx context.Context, actions ...chromedp.Action) error {
			return errors.New("net::ERR_NAME_NOT_RESOLVED")
		})

		err := d.Navigate(context.Background(), "https://x.invalid/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "https://x.invalid/")
	})

	t.Run("lookups are bounded by the implicit wait", func(t *testing.T) {
		var deadline time.Time
		d := newCapturingDriver(t, 300*time.Millisecond, func(ctx context.Context, actions ...chromedp.Action) error {
			var ok bool
			deadline, ok = ctx.Deadline()
			require.True(t, ok)
			return nil
		})

		start := time.Now()
		require.NoError(t, d.WaitElement(context.Background(), "#userid"))
		assert.WithinDuration(t, start.Add(300*time.Millisecond), deadline, 100*time.Millisecond)

		require.NoError(t, d.SendKeys(context.Background(), "#userid", "someone@example.com"))
		require.NoError(t, d.Click(context.Background(), "#signin-continue-btn"))
	})

	t.Run("expired budget reports the selector", func(t *testing.T) {
		d := newCapturingDriver(t, 20*time.Millisecond, func(ctx context.Context, actions ...chromedp.Action) error {
			<-ctx.Done()
			return ctx.Err()
		})

		err := d.WaitElement(context.Background(), "#userid")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), `no element matches "#userid"`)
	})

	t.Run("caller cancellation is not reported as a missing element", func(t *testing.T) {
		d := newCapturingDriver(t, time.Minute, func(ctx context.Context, actions ...chromedp.Action) error {
			<-ctx.Done()
			return ctx.Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := d.Click(ctx, "#signin-continue-btn")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotContains(t, err.Error(), "no element matches")
	})

	t.Run("zero wait falls back to the default", func(t *testing.T) {
		d := newCDPDriver(context.Background(), 0, zaptest.NewLogger(t))
		assert.Equal(t, DefaultImplicitWait, d.implicitWait)
	})
}

// recordingInput is a humanoid executor that records keys and clicks.
type recordingInput struct {
	mu      sync.Mutex
	keys    []string
	presses int
}

func (r *recordingInput) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func (r *recordingInput) DispatchMouseEvent(ctx context.Context, ev humanoid.MouseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Type == humanoid.MousePress {
		r.presses++
	}
	return nil
}

func (r *recordingInput) SendKeys(ctx context.Context, keys string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, keys)
	return nil
}

func (r *recordingInput) ElementBox(ctx context.Context, selector string) (humanoid.Box, error) {
	return humanoid.Box{X: 10, Y: 10, Width: 200, Height: 30}, nil
}

func TestCDPDriverHumanized(t *testing.T) {
	newHumanized := func(t *testing.T, run func(ctx context.Context, actions ...chromedp.Action) error) (*cdpDriver, *recordingInput) {
		d := newCapturingDriver(t, time.Second, run)
		in := &recordingInput{}
		cfg := humanoid.DefaultConfig()
		cfg.Rng = rand.New(rand.NewSource(1))
		cfg.TypoRate = 0
		d.humanoid = humanoid.New(cfg, zaptest.NewLogger(t), in)
		return d, in
	}

	t.Run("typing goes through the input model", func(t *testing.T) {
		var runs int
		d, in := newHumanized(t, func(ctx context.Context, actions ...chromedp.Action) error {
			runs++
			return nil
		})

		require.NoError(t, d.SendKeys(context.Background(), "#userid", "someone@example.com"))
		assert.Equal(t, 1, runs, "only the visibility wait reaches the tab directly")
		assert.Equal(t, "someone@example.com", strings.Join(in.keys, ""))
		assert.Equal(t, 1, in.presses, "field focused with a click")
	})

	t.Run("click goes through the input model", func(t *testing.T) {
		d, in := newHumanized(t, func(ctx context.Context, actions ...chromedp.Action) error { return nil })

		require.NoError(t, d.Click(context.Background(), "#signin-continue-btn"))
		assert.Equal(t, 1, in.presses)
		assert.Empty(t, in.keys)
	})

	t.Run("missing element is reported before any input", func(t *testing.T) {
		d, in := newHumanized(t, func(ctx context.Context, actions ...chromedp.Action) error {
			<-ctx.Done()
			return ctx.Err()
		})
		d.implicitWait = 20 * time.Millisecond

		err := d.SendKeys(context.Background(), "#userid", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no element matches "#userid"`)
		assert.Empty(t, in.keys)
		assert.Zero(t, in.presses)
	})
}

func TestCDPInput(t *testing.T) {
	t.Run("mouse events map onto the input domain", func(t *testing.T) {
		var captured []chromedp.Action
		d := newCapturingDriver(t, time.Second, func(ctx context.Context, actions ...chromedp.Action) error {
			captured = append(captured, actions...)
			return nil
		})
		in := &cdpInput{d: d}

		require.NoError(t, in.DispatchMouseEvent(context.Background(), humanoid.MouseEvent{
			Type: humanoid.MousePress, X: 12.5, Y: 40, Button: humanoid.ButtonLeft, ClickCount: 1, Buttons: 1,
		}))
		require.Len(t, captured, 1)
		p, ok := captured[0].(*input.DispatchMouseEventParams)
		require.True(t, ok)
		assert.Equal(t, input.MousePressed, p.Type)
		assert.Equal(t, input.Left, p.Button)
		assert.Equal(t, 12.5, p.X)
		assert.Equal(t, int64(1), p.ClickCount)
		assert.Equal(t, int64(1), p.Buttons)
	})

	t.Run("keys are sent as one key action", func(t *testing.T) {
		var captured []chromedp.Action
		d := newCapturingDriver(t, time.Second, func(ctx context.Context, actions ...chromedp.Action) error {
			captured = append(captured, actions...)
			return nil
		})
		require.NoError(t, (&cdpInput{d: d}).SendKeys(context.Background(), humanoid.KeyBackspace))
		assert.Len(t, captured, 1)
	})

	t.Run("absent element has no box", func(t *testing.T) {
		d := newCapturingDriver(t, time.Second, func(ctx context.Context, actions ...chromedp.Action) error { return nil })
		_, err := (&cdpInput{d: d}).ElementBox(context.Background(), "#userid")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no element matches "#userid"`)
	})

	t.Run("sleep honours cancellation", func(t *testing.T) {
		in := &cdpInput{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, in.Sleep(ctx, time.Hour), context.Canceled)
		assert.NoError(t, in.Sleep(context.Background(), time.Millisecond))
	})
}

func TestIsWebsocketURL(t *testing.T) {
	assert.True(t, isWebsocketURL("ws://127.0.0.1:9222/devtools/browser/abc"))
	assert.True(t, isWebsocketURL("wss://host/devtools/browser/abc"))
	assert.False(t, isWebsocketURL("http://127.0.0.1:9222"))
}
