// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/ebaybot/internal/process"
)

// Driver is the narrow slice of the remote-control protocol the bot needs:
// navigate, read the location, find an element, type into it, click it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// WaitElement blocks until selector matches a visible element or the
	// implicit-wait budget runs out.
	WaitElement(ctx context.Context, selector string) error
	SendKeys(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
}

// ActionExecutor runs raw chromedp actions against the session's tab. The
// implementation combines ctx with the long-lived tab context.
type ActionExecutor interface {
	RunActions(ctx context.Context, actions ...chromedp.Action) error
}

// Owned pairs a started auxiliary process with its role.
type Owned struct {
	Role   string
	Handle process.Handle
}

// Remover is anything removable from disk, such as the profile directory.
type Remover interface {
	Remove() error
}

// Releaser is a held lock.
type Releaser interface {
	Release() error
}
