// internal/browser/session/driver.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ebaybot/internal/browser/humanoid"
	"github.com/xkilldash9x/ebaybot/internal/browser/stealth"
	"github.com/xkilldash9x/ebaybot/internal/failure"
)

// DefaultImplicitWait bounds element lookups when no budget is configured.
const DefaultImplicitWait = 10 * time.Second

// cdpDriver implements Driver over a chromedp tab context.
type cdpDriver struct {
	ctx          context.Context // tab context, carries the CDP target
	logger       *zap.Logger
	implicitWait time.Duration
	// humanoid, when set, types and clicks with human timing.
	humanoid *humanoid.Humanoid
	// runActionsFunc is swapped in tests to capture actions.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
}

var (
	_ Driver         = (*cdpDriver)(nil)
	_ ActionExecutor = (*cdpDriver)(nil)
)

func newCDPDriver(tabCtx context.Context, implicitWait time.Duration, logger *zap.Logger) *cdpDriver {
	if implicitWait <= 0 {
		implicitWait = DefaultImplicitWait
	}
	d := &cdpDriver{
		ctx:          tabCtx,
		logger:       logger,
		implicitWait: implicitWait,
	}
	d.runActionsFunc = d.run
	return d
}

// RunActions executes actions with ctx bounding them and the tab context
// supplying the connection.
func (d *cdpDriver) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	return d.runActionsFunc(ctx, actions...)
}

func (d *cdpDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(d.ctx, ctx)
	defer cancel()
	return chromedp.Run(combined, actions...)
}

func (d *cdpDriver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating", zap.String("url", url))
	if err := d.runActionsFunc(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *cdpDriver) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := d.runActionsFunc(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read current location: %w", err)
	}
	return location, nil
}

// withImplicitWait derives the lookup budget from ctx.
func (d *cdpDriver) withImplicitWait(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.implicitWait)
}

func (d *cdpDriver) lookupErr(ctx, opCtx context.Context, selector string, err error) error {
	if ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("no element matches %q after %v: %w", selector, d.implicitWait, opCtx.Err())
	}
	return fmt.Errorf("lookup of %q failed: %w", selector, err)
}

func (d *cdpDriver) WaitElement(ctx context.Context, selector string) error {
	opCtx, cancel := d.withImplicitWait(ctx)
	defer cancel()

	if err := d.runActionsFunc(opCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return d.lookupErr(ctx, opCtx, selector, err)
	}
	return nil
}

// SendKeys waits for the element, then types text into it.
func (d *cdpDriver) SendKeys(ctx context.Context, selector, text string) error {
	if d.humanoid == nil {
		opCtx, cancel := d.withImplicitWait(ctx)
		defer cancel()
		if err := d.runActionsFunc(opCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
			return d.lookupErr(ctx, opCtx, selector, err)
		}
		return nil
	}

	if err := d.WaitElement(ctx, selector); err != nil {
		return err
	}
	if err := d.humanoid.Type(ctx, selector, text); err != nil {
		return fmt.Errorf("typing into %q failed: %w", selector, err)
	}
	return nil
}

// Click waits for the element, then clicks it.
func (d *cdpDriver) Click(ctx context.Context, selector string) error {
	if d.humanoid == nil {
		opCtx, cancel := d.withImplicitWait(ctx)
		defer cancel()
		if err := d.runActionsFunc(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
			return d.lookupErr(ctx, opCtx, selector, err)
		}
		return nil
	}

	if err := d.WaitElement(ctx, selector); err != nil {
		return err
	}
	if err := d.humanoid.Click(ctx, selector); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

// cdpInput is the humanoid model's view of the tab.
type cdpInput struct {
	d *cdpDriver
}

var _ humanoid.Executor = (*cdpInput)(nil)

func (in *cdpInput) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (in *cdpInput) DispatchMouseEvent(ctx context.Context, ev humanoid.MouseEvent) error {
	p := input.DispatchMouseEvent(input.MouseType(ev.Type), ev.X, ev.Y).
		WithButton(input.MouseButton(ev.Button)).
		WithButtons(ev.Buttons)
	if ev.ClickCount > 0 {
		p = p.WithClickCount(int64(ev.ClickCount))
	}
	return in.d.runActionsFunc(ctx, p)
}

func (in *cdpInput) SendKeys(ctx context.Context, keys string) error {
	return in.d.runActionsFunc(ctx, chromedp.KeyEvent(keys))
}

// elementBoxScript centres the element in the viewport and reports its
// client rect, or null when nothing matches.
const elementBoxScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) return null;
	el.scrollIntoView({block: "center", inline: "center"});
	const r = el.getBoundingClientRect();
	return {x: r.left, y: r.top, width: r.width, height: r.height};
})()`

type clientRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (in *cdpInput) ElementBox(ctx context.Context, selector string) (humanoid.Box, error) {
	quoted, err := jsoniter.Marshal(selector)
	if err != nil {
		return humanoid.Box{}, err
	}
	var rect *clientRect
	if err := in.d.runActionsFunc(ctx, chromedp.Evaluate(fmt.Sprintf(elementBoxScript, quoted), &rect)); err != nil {
		return humanoid.Box{}, err
	}
	if rect == nil {
		return humanoid.Box{}, fmt.Errorf("no element matches %q", selector)
	}
	return humanoid.Box{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

// DefaultHandshakeTimeout bounds opening the first tab when no budget is set.
const DefaultHandshakeTimeout = 10 * time.Second

// DialOptions describe how to reach a running driver.
type DialOptions struct {
	// URL is either the browser websocket URL reported by /json/version or
	// the plain HTTP endpoint, which chromedp resolves itself.
	URL              string
	Persona          stealth.Persona
	ImplicitWait     time.Duration
	HandshakeTimeout time.Duration
	// Humanize routes typing and clicks through the humanoid input model.
	Humanize bool
}

// Connection is an open control channel to the driver.
type Connection struct {
	*cdpDriver
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Disconnect closes the tab and the websocket.
func (c *Connection) Disconnect() {
	c.cancelTab()
	c.cancelAlloc()
}

// Dial connects to the driver and performs the handshake: the first run
// opens a tab, then the stealth persona is applied to it. Failures are
// ConnectionFailed. The connection is rooted in a detached copy of ctx, so
// cancelling ctx after Dial returns does not drop it.
func Dial(ctx context.Context, opts DialOptions, logger *zap.Logger) (*Connection, error) {
	logger = logger.Named("driver")

	var allocOpts []chromedp.RemoteAllocatorOption
	if isWebsocketURL(opts.URL) {
		allocOpts = append(allocOpts, chromedp.NoModifyURL)
	}
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(Detach(ctx), opts.URL, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Warnf),
	)

	conn := &Connection{
		cdpDriver:   newCDPDriver(tabCtx, opts.ImplicitWait, logger),
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}
	if opts.Humanize {
		conn.humanoid = humanoid.New(humanoid.DefaultConfig(), logger, &cdpInput{d: conn.cdpDriver})
	}

	if err := openTab(ctx, tabCtx, opts.HandshakeTimeout); err != nil {
		conn.Disconnect()
		return nil, failure.New(failure.CodeConnectionFailed, "handshake", err)
	}
	if err := conn.RunActions(ctx, stealth.Apply(opts.Persona, logger)); err != nil {
		conn.Disconnect()
		return nil, failure.New(failure.CodeConnectionFailed, "stealth", err)
	}

	logger.Info("Connected to automation driver", zap.String("url", opts.URL))
	return conn, nil
}

// openTab performs the allocating run. chromedp ties the websocket to the
// context of the first Run, so it must be tabCtx itself and not a child;
// the budget is enforced out of band instead.
func openTab(ctx, tabCtx context.Context, budget time.Duration) error {
	if budget <= 0 {
		budget = DefaultHandshakeTimeout
	}
	timer := time.NewTimer(budget)
	defer timer.Stop()

	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no tab opened within %v", budget)
	}
}

func isWebsocketURL(u string) bool {
	return strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://")
}
