package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pollInterval is how often the driver's version endpoint is polled.
const pollInterval = 100 * time.Millisecond

type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// awaitDriver polls endpoint's /json/version until it answers or budget
// runs out. It returns the reported websocket URL, or "" when the driver never
// answered in time; the connection attempt that follows decides whether that
// is fatal. Only cancellation of ctx is an error.
func (o *Orchestrator) awaitDriver(ctx context.Context, endpoint string, budget time.Duration) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)
	limiter.Allow() // the first request spends the initial token
	started := time.Now()

	for attempt := 1; ; attempt++ {
		info, err := o.fetchVersion(pctx, endpoint)
		if err == nil {
			o.logger.Debug("Driver is ready",
				zap.String("browser", info.Browser),
				zap.Int("attempts", attempt),
				zap.Duration("after", time.Since(started)),
			)
			return info.WebSocketDebuggerURL, nil
		}
		if err := limiter.Wait(pctx); err != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	o.logger.Warn("Driver did not answer within the readiness budget, connecting anyway",
		zap.String("endpoint", endpoint),
		zap.Duration("budget", budget),
	)
	return "", nil
}

func (o *Orchestrator) fetchVersion(ctx context.Context, endpoint string) (*versionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(endpoint, "/")+"/json/version", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("version endpoint returned %s", resp.Status)
	}
	var info versionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("invalid version response: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return nil, fmt.Errorf("no webSocketDebuggerUrl in version response")
	}
	return &info, nil
}
