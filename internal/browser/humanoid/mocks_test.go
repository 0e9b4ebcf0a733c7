// internal/browser/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// mockExecutor records everything the model sends and never really sleeps.
type mockExecutor struct {
	mu     sync.Mutex
	events []MouseEvent
	keys   []string
	sleeps []time.Duration
	boxes  map[string]Box

	// failKeysAfter makes SendKeys fail once this many keys were sent.
	failKeysAfter int
	// onSleep, when set, runs after each recorded sleep with its ordinal.
	onSleep func(n int, d time.Duration)
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		boxes: map[string]Box{
			"#userid":              {X: 100, Y: 200, Width: 300, Height: 40},
			"#signin-continue-btn": {X: 100, Y: 260, Width: 300, Height: 48},
			"#collapsed":           {X: 10, Y: 10, Width: 0, Height: 0},
		},
		failKeysAfter: -1,
	}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.sleeps = append(m.sleeps, d)
	n := len(m.sleeps)
	hook := m.onSleep
	m.mu.Unlock()
	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, ev MouseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return ctx.Err()
}

func (m *mockExecutor) SendKeys(ctx context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failKeysAfter >= 0 && len(m.keys) >= m.failKeysAfter {
		return errors.New("target closed")
	}
	m.keys = append(m.keys, keys)
	return ctx.Err()
}

func (m *mockExecutor) ElementBox(ctx context.Context, selector string) (Box, error) {
	box, ok := m.boxes[selector]
	if !ok {
		return Box{}, errors.New("element not found")
	}
	return box, nil
}

// typed replays the recorded keys, applying backspaces.
func (m *mockExecutor) typed() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rune
	for _, k := range m.keys {
		if k == KeyBackspace {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, []rune(k)...)
	}
	return string(out)
}

func (m *mockExecutor) rawKeys() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.keys, "")
}

func (m *mockExecutor) mouseEvents() []MouseEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MouseEvent(nil), m.events...)
}

func (m *mockExecutor) sleepDurations() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleeps...)
}

// newTestHumanoid returns a deterministic Humanoid over exec.
func newTestHumanoid(t *testing.T, exec Executor, seed int64) *Humanoid {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Rng = rand.New(rand.NewSource(seed))
	return New(cfg, zaptest.NewLogger(t), exec)
}
