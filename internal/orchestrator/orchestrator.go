// Package orchestrator brings up a complete browser session: virtual display,
// remote-frame server, profile, automation driver and control channel.
package orchestrator

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ebaybot/internal/browser/session"
	"github.com/xkilldash9x/ebaybot/internal/browser/stealth"
	"github.com/xkilldash9x/ebaybot/internal/config"
	"github.com/xkilldash9x/ebaybot/internal/failure"
	"github.com/xkilldash9x/ebaybot/internal/lock"
	"github.com/xkilldash9x/ebaybot/internal/process"
	"github.com/xkilldash9x/ebaybot/internal/profile"
	"github.com/xkilldash9x/ebaybot/internal/registry"
)

// Process roles, matching the registry roles.
const (
	RoleDriver      = string(registry.RoleDriver)
	RoleDisplay     = string(registry.RoleDisplay)
	RoleFrameServer = string(registry.RoleFrameServer)
)

// rollbackWait bounds how long a rollback waits for a killed process to exit.
const rollbackWait = 5 * time.Second

// DefaultStartupGrace is how long the display and frame server must stay up
// after being spawned before startup moves on. Both fail fast on a bad
// argument or a display number already in use.
const DefaultStartupGrace = 500 * time.Millisecond

// Provisioner creates the session's browser profile.
type Provisioner interface {
	Provision() (*profile.Profile, error)
}

// Connection is a live control channel.
type Connection interface {
	session.Driver
	Disconnect()
}

// DialFunc opens the control channel to a started driver.
type DialFunc func(ctx context.Context, opts session.DialOptions, logger *zap.Logger) (Connection, error)

// Orchestrator starts sessions. It is not safe for concurrent use; the lock
// file keeps a second invocation out.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry

	spawner     process.Spawner
	provisioner Provisioner
	dial        DialFunc
	acquireLock func(path string) (session.Releaser, error)
	resolve     func(role string, candidates ...string) (string, error)
	httpClient  *http.Client

	startupGrace time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSpawner replaces the process spawner.
func WithSpawner(s process.Spawner) Option {
	return func(o *Orchestrator) { o.spawner = s }
}

// WithProvisioner replaces the profile provisioner.
func WithProvisioner(p Provisioner) Option {
	return func(o *Orchestrator) { o.provisioner = p }
}

// WithDialer replaces the control channel dialer.
func WithDialer(d DialFunc) Option {
	return func(o *Orchestrator) { o.dial = d }
}

// WithLocker replaces the single-instance lock.
func WithLocker(acquire func(path string) (session.Releaser, error)) Option {
	return func(o *Orchestrator) { o.acquireLock = acquire }
}

// WithResolver replaces the PATH lookup of the driver executable.
func WithResolver(resolve func(role string, candidates ...string) (string, error)) Option {
	return func(o *Orchestrator) { o.resolve = resolve }
}

// WithRegistry replaces the process registry.
func WithRegistry(r *registry.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithStartupGrace changes how long auxiliary processes are watched for an
// early exit. Zero disables the check.
func WithStartupGrace(d time.Duration) Option {
	return func(o *Orchestrator) { o.startupGrace = d }
}

// WithHTTPClient replaces the client used for readiness checks.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.httpClient = c }
}

// New creates an Orchestrator from configuration.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	logger = logger.Named("orchestrator")
	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		registry: registry.New(cfg.Session.RegistryPath),
		spawner:  process.NewExecSpawner(),
		provisioner: profile.NewProvisioner(profile.Options{
			Root:          cfg.Profile.Root,
			ExtensionPath: cfg.Profile.ExtensionPath,
			ExtensionName: cfg.Profile.ExtensionName,
			Persona: stealth.Persona{
				UserAgent: cfg.Profile.UserAgent,
				Platform:  cfg.Profile.Platform,
				Languages: cfg.Profile.Languages,
			},
		}, logger),
		dial: func(ctx context.Context, opts session.DialOptions, logger *zap.Logger) (Connection, error) {
			conn, err := session.Dial(ctx, opts, logger)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		acquireLock: func(path string) (session.Releaser, error) {
			lk, err := lock.Acquire(path)
			if err != nil {
				return nil, err
			}
			return lk, nil
		},
		resolve: process.Resolve,
		httpClient: &http.Client{
			Timeout:   time.Second,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		startupGrace: DefaultStartupGrace,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartSession launches every component of a session in order and returns
// a handle owning all of them. If any step fails, whatever was already
// started is stopped again before the error is returned.
func (o *Orchestrator) StartSession(ctx context.Context) (_ *session.BrowserSession, err error) {
	var rb rollback
	defer func() {
		if err != nil {
			o.logger.Warn("Session start failed, rolling back", zap.Error(err))
			rb.run(o.logger)
		}
	}()

	lk, err := o.acquireLock(o.cfg.Session.LockPath)
	if err != nil {
		return nil, err
	}
	rb.push("release lock", lk.Release)

	if o.registry.Exists() {
		return nil, failure.Newf(failure.CodeSessionActive, "registry",
			"%s exists; run teardown before building a new session", o.registry.Path())
	}

	display, err := o.spawn(ctx, &rb, displaySpec(o.cfg.Display), o.startupGrace)
	if err != nil {
		return nil, err
	}
	frame, err := o.spawn(ctx, &rb, frameServerSpec(o.cfg.Display, o.cfg.FrameServer), o.startupGrace)
	if err != nil {
		return nil, err
	}

	prof, err := o.provisioner.Provision()
	if err != nil {
		return nil, err
	}
	rb.push("remove profile", prof.Remove)

	driverPath, err := o.resolve(RoleDriver, o.cfg.Driver.Candidates...)
	if err != nil {
		return nil, err
	}
	// The readiness check below notices a driver that dies on startup.
	driver, err := o.spawn(ctx, &rb, driverSpec(driverPath, o.cfg, prof), 0)
	if err != nil {
		return nil, err
	}

	endpoint := o.cfg.Driver.Endpoint()
	wsURL, err := o.awaitDriver(ctx, endpoint, o.cfg.Driver.ReadyTimeout)
	if err != nil {
		return nil, failure.New(failure.CodeConnectionFailed, "readiness", err)
	}
	dialURL := wsURL
	if dialURL == "" {
		dialURL = endpoint
	}

	conn, err := o.dial(ctx, session.DialOptions{
		URL:              dialURL,
		Persona:          prof.Persona,
		ImplicitWait:     o.cfg.Driver.ImplicitWait,
		HandshakeTimeout: o.cfg.Driver.HandshakeTimeout,
		Humanize:         o.cfg.Driver.Humanize,
	}, o.logger)
	if err != nil {
		return nil, failure.New(failure.CodeConnectionFailed, "dial", err)
	}
	rb.push("disconnect", func() error { conn.Disconnect(); return nil })

	if err := o.registry.Write(registry.PIDs{
		Driver:      driver.PID(),
		Display:     display.PID(),
		FrameServer: frame.PID(),
	}); err != nil {
		return nil, err
	}

	sess := session.New(session.Resources{
		Driver:     conn,
		Disconnect: conn.Disconnect,
		Processes: []session.Owned{
			{Role: RoleDriver, Handle: driver},
			{Role: RoleFrameServer, Handle: frame},
			{Role: RoleDisplay, Handle: display},
		},
		Profile:  prof,
		Registry: o.registry,
		Lock:     lk,
	}, o.logger)

	o.logger.Info("Browser session started",
		zap.String("session_id", sess.ID()),
		zap.Int("driver_pid", driver.PID()),
		zap.Int("display_pid", display.PID()),
		zap.Int("frame_server_pid", frame.PID()),
		zap.String("display", o.cfg.Display.Name()),
		zap.Int("vnc_port", o.cfg.FrameServer.Port),
	)
	return sess, nil
}

// spawn starts spec and registers its rollback. With a positive grace the
// process must also survive that long.
func (o *Orchestrator) spawn(ctx context.Context, rb *rollback, spec process.Spec, grace time.Duration) (process.Handle, error) {
	h, err := o.spawner.Spawn(ctx, spec)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("Started process", zap.String("role", spec.Role), zap.Int("pid", h.PID()), zap.Stringer("cmd", spec))
	rb.push("kill "+spec.Role, func() error {
		err := h.Kill()
		select {
		case <-h.Done():
		case <-time.After(rollbackWait):
		}
		return err
	})

	if grace > 0 {
		if err := survives(ctx, h, spec.Role, grace); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// survives fails with ProcessSpawnFailed if h exits within grace.
func survives(ctx context.Context, h process.Handle, role string, grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-h.Done():
		return failure.Newf(failure.CodeProcessSpawnFailed, role, "pid %d exited during startup", h.PID())
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// rollback undoes startup steps in reverse order.
type rollback struct {
	steps []rollbackStep
}

type rollbackStep struct {
	name string
	undo func() error
}

func (r *rollback) push(name string, undo func() error) {
	r.steps = append(r.steps, rollbackStep{name: name, undo: undo})
}

func (r *rollback) run(logger *zap.Logger) {
	for i := len(r.steps) - 1; i >= 0; i-- {
		step := r.steps[i]
		if err := step.undo(); err != nil {
			logger.Warn("Rollback step failed", zap.String("step", step.name), zap.Error(err))
		}
	}
	r.steps = nil
}
