// File: cmd/build.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ebaybot/internal/browser/session"
	"github.com/xkilldash9x/ebaybot/internal/challenge"
	"github.com/xkilldash9x/ebaybot/internal/config"
	"github.com/xkilldash9x/ebaybot/internal/failure"
	"github.com/xkilldash9x/ebaybot/internal/observability"
	"github.com/xkilldash9x/ebaybot/internal/orchestrator"
	"github.com/xkilldash9x/ebaybot/internal/signin"
)

// closeTimeout bounds the wait for processes to exit once the session is closed.
const closeTimeout = 10 * time.Second

// startSession is a variable so tests can substitute the orchestrator.
var startSession = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*session.BrowserSession, error) {
	return orchestrator.New(cfg, logger).StartSession(ctx)
}

func newBuildCmd() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Start a browser session and sign in",
		Long: `Starts a virtual display, a VNC server and a browser on a fresh profile,
then signs in with EBAY_EMAIL. If an anti-bot challenge appears, solve it over
VNC; the sign-in resumes once the challenge page is gone.

Once signed in the command returns and the session keeps running; stop it
with "ebay teardown". With --wait the command stays attached instead and
closes the session when interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runBuild(cmd, cfg, observability.GetLogger().Named("build"))
		},
	}

	buildCmd.Flags().IntP("offer-percentage", "o", 0, "Offer percentage to apply to listings")
	buildCmd.Flags().Bool("wait", false, "Stay attached and close the session on Ctrl+C")
	return buildCmd
}

func runBuild(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// Checked before anything is spawned.
	if err := cfg.Credentials.ValidateCredentials(); err != nil {
		return failure.New(failure.CodeMissingCredentials, "credentials", err)
	}

	logger.Info("Building session",
		zap.Int("offer_percentage", cfg.Build.OfferPercentage),
		zap.Bool("wait", cfg.Build.Wait),
	)

	sess, err := startSession(ctx, cfg, logger)
	if err != nil {
		return err
	}

	monitor := challenge.NewMonitor(sess.Driver(), logger,
		challenge.WithMarker(cfg.Session.ChallengeMarker),
		challenge.WithInterval(cfg.Session.ChallengeInterval),
		challenge.WithTimeout(cfg.Session.ChallengeTimeout),
	)
	flow := signin.NewFlow(sess.Driver(), monitor, signin.Config{
		URL:              cfg.SignIn.URL,
		EmailSelector:    cfg.SignIn.EmailSelector,
		ContinueSelector: cfg.SignIn.ContinueSelector,
		Settle:           cfg.Session.Settle,
		SettleMax:        cfg.Session.SettleMax,
	}, logger)

	if err := flow.SignIn(ctx, cfg.Credentials.Email, cfg.Credentials.Password); err != nil {
		if closeErr := closeSession(sess); closeErr != nil {
			logger.Warn("Session cleanup after failed sign-in was incomplete", zap.Error(closeErr))
		}
		return err
	}

	if !cfg.Build.Wait {
		if err := sess.Detach(); err != nil {
			logger.Warn("Failed to release session lock", zap.Error(err))
		}
		fmt.Fprintf(out, "Session %s running on display %s, VNC port %d.\n", sess.ID(), cfg.Display.Name(), cfg.FrameServer.Port)
		fmt.Fprintf(out, "Process registry: %s. Run \"ebay teardown\" to stop it.\n", cfg.Session.RegistryPath)
		return nil
	}

	fmt.Fprintf(out, "Session %s running on display %s, VNC port %d. Press Ctrl+C to stop.\n", sess.ID(), cfg.Display.Name(), cfg.FrameServer.Port)
	<-ctx.Done()
	logger.Info("Interrupted, closing session")

	if err := closeSession(sess); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// closeSession closes sess with a fresh deadline, since the command context
// is usually already done at this point.
func closeSession(sess *session.BrowserSession) error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return sess.Close(ctx)
}
