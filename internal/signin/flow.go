// Package signin drives the account sign-in form.
package signin

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ebaybot/internal/browser/session"
	"github.com/xkilldash9x/ebaybot/internal/failure"
)

// Defaults for the sign-in page.
const (
	DefaultURL              = "https://signin.ebay.com/signin/"
	DefaultEmailSelector    = "#userid"
	DefaultContinueSelector = "#signin-continue-btn"
	DefaultSettle           = 2 * time.Second
	DefaultSettleMax        = 5 * time.Second

	settleInterval = 500 * time.Millisecond
)

// Steps reported with ElementNotFound.
const (
	StepEmail    = "email"
	StepContinue = "continue"
)

// ChallengeWaiter blocks while an anti-automation challenge is shown.
type ChallengeWaiter interface {
	Wait(ctx context.Context) error
}

// Config holds the page address, the form selectors and the settle budget.
// The page always gets Settle to run its scripts; the wait then extends, up
// to SettleMax in total, while the location keeps changing. A zero Settle
// skips the wait.
type Config struct {
	URL              string
	EmailSelector    string
	ContinueSelector string
	Settle           time.Duration
	SettleMax        time.Duration
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.EmailSelector == "" {
		c.EmailSelector = DefaultEmailSelector
	}
	if c.ContinueSelector == "" {
		c.ContinueSelector = DefaultContinueSelector
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	if c.SettleMax < c.Settle {
		c.SettleMax = c.Settle
	}
}

// Flow performs the sign-in steps against a driver.
type Flow struct {
	driver     session.Driver
	challenges ChallengeWaiter
	cfg        Config
	logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFlow creates a Flow. challenges may be nil to skip challenge handling.
func NewFlow(driver session.Driver, challenges ChallengeWaiter, cfg Config, logger *zap.Logger) *Flow {
	cfg.applyDefaults()
	return &Flow{
		driver:     driver,
		challenges: challenges,
		cfg:        cfg,
		logger:     logger.Named("signin"),
		sleep:      sleepContext,
	}
}

// SignIn opens the sign-in page, waits out any challenge, enters the email
// and presses continue. The password step is not automated yet; password is
// accepted so callers need not change when it is.
func (f *Flow) SignIn(ctx context.Context, email, password string) error {
	_ = password

	f.logger.Info("Opening sign-in page", zap.String("url", f.cfg.URL))
	if err := f.driver.Navigate(ctx, f.cfg.URL); err != nil {
		return err
	}
	if err := f.settle(ctx); err != nil {
		return err
	}

	if f.challenges != nil {
		if err := f.challenges.Wait(ctx); err != nil {
			return err
		}
	}

	if err := f.driver.WaitElement(ctx, f.cfg.EmailSelector); err != nil {
		return f.notFound(ctx, StepEmail, err)
	}
	if err := f.driver.SendKeys(ctx, f.cfg.EmailSelector, email); err != nil {
		return fmt.Errorf("failed to enter email: %w", err)
	}
	f.logger.Debug("Email entered")

	if err := f.driver.WaitElement(ctx, f.cfg.ContinueSelector); err != nil {
		return f.notFound(ctx, StepContinue, err)
	}
	if err := f.driver.Click(ctx, f.cfg.ContinueSelector); err != nil {
		return fmt.Errorf("failed to press continue: %w", err)
	}

	f.logger.Info("Submitted email, continue pressed")
	return nil
}

// notFound classifies a failed lookup. A cancelled caller is passed through
// unchanged rather than reported as a missing element.
func (f *Flow) notFound(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return failure.New(failure.CodeElementNotFound, step, err)
}

// settle sleeps the minimum Settle, then samples the location every
// settleInterval until two samples agree or SettleMax has passed. Running out
// of budget is not an error.
func (f *Flow) settle(ctx context.Context) error {
	if f.cfg.Settle <= 0 {
		return ctx.Err()
	}
	if err := f.sleep(ctx, f.cfg.Settle); err != nil {
		return err
	}

	remaining := f.cfg.SettleMax - f.cfg.Settle
	if remaining <= 0 {
		return nil
	}
	prev, err := f.driver.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to sample location: %w", err)
	}
	for remaining > 0 {
		step := min(settleInterval, remaining)
		if err := f.sleep(ctx, step); err != nil {
			return err
		}
		remaining -= step

		current, err := f.driver.CurrentURL(ctx)
		if err != nil {
			return fmt.Errorf("failed to sample location: %w", err)
		}
		if current == prev {
			return nil
		}
		f.logger.Debug("Page still redirecting", zap.String("location", current))
		prev = current
	}
	f.logger.Debug("Settle budget exhausted", zap.String("location", prev))
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
