package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ebaybot/internal/browser/session"
	"github.com/xkilldash9x/ebaybot/internal/config"
	"github.com/xkilldash9x/ebaybot/internal/failure"
	"github.com/xkilldash9x/ebaybot/internal/observability"
	"github.com/xkilldash9x/ebaybot/internal/process"
	"github.com/xkilldash9x/ebaybot/internal/registry"
)

// testEnv is an isolated config file plus the paths it points at.
type testEnv struct {
	dir          string
	configPath   string
	registryPath string
	profileRoot  string
}

func newTestEnv(t *testing.T, extraYAML string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:          dir,
		configPath:   filepath.Join(dir, "config.yaml"),
		registryPath: filepath.Join(dir, "ebay_driver_pids"),
		profileRoot:  filepath.Join(dir, "profiles"),
	}
	require.NoError(t, os.MkdirAll(env.profileRoot, 0o755))

	content := fmt.Sprintf(`logger:
  level: error
  log_dir: ""
session:
  registry_path: %s
  lock_path: %s
  settle: 0s
  challenge_interval: 10ms
profile:
  root: %s
%s`, env.registryPath, filepath.Join(dir, "ebay_driver.lock"), env.profileRoot, extraYAML)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	// Empty values count as unset for the config layer.
	t.Setenv("EBAY_EMAIL", "")
	t.Setenv("EBAY_PASSWORD", "")
	return env
}

// executeCommand runs a fresh command tree against env's config file.
func (env *testEnv) executeCommand(ctx context.Context, args ...string) (string, error) {
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config", env.configPath, "--env-file", ""}, args...))
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := env.executeCommand(context.Background(), "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = env.executeCommand(context.Background(), "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	env := newTestEnv(t, "driver:\n  port: 0\n")

	_, err := env.executeCommand(context.Background(), "teardown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver.port")
}

func TestViewIsNotImplemented(t *testing.T) {
	env := newTestEnv(t, "")

	out, err := env.executeCommand(context.Background(), "view")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrNotImplemented))
	assert.Empty(t, out)
}

// -- Teardown --

type recordingKiller struct {
	mu     sync.Mutex
	killed []int
}

func (k *recordingKiller) Kill(pid int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.killed = append(k.killed, pid)
	return nil
}

func stubKiller(t *testing.T) *recordingKiller {
	t.Helper()
	k := &recordingKiller{}
	orig := newKiller
	t.Cleanup(func() { newKiller = orig })
	newKiller = func() process.Killer { return k }
	return k
}

func TestTeardownCommand(t *testing.T) {
	env := newTestEnv(t, "")
	killer := stubKiller(t)

	require.NoError(t, registry.New(env.registryPath).Write(registry.PIDs{Driver: 101, Display: 202, FrameServer: 303}))
	leftover := filepath.Join(env.profileRoot, "ebay-profile-123")
	require.NoError(t, os.MkdirAll(leftover, 0o755))

	out, err := env.executeCommand(context.Background(), "teardown")
	require.NoError(t, err)

	assert.Equal(t, []int{101, 202, 303}, killer.killed)
	assert.Contains(t, out, "killed pid 101")
	assert.Contains(t, out, "killed pid 303")
	assert.Contains(t, out, "removed profile "+leftover)
	assert.NoFileExists(t, env.registryPath)
	assert.NoDirExists(t, leftover)
}

func TestTeardownCommandWithoutRegistry(t *testing.T) {
	env := newTestEnv(t, "")
	killer := stubKiller(t)

	_, err := env.executeCommand(context.Background(), "teardown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrRegistryNotFound))
	assert.Empty(t, killer.killed)
}

// -- Build --

const signedOutURL = "https://signin.ebay.com/signin/"

// scriptedDriver is a Driver that never touches a browser.
type scriptedDriver struct {
	mu      sync.Mutex
	calls   []string
	missing string
	onClick func()
}

func (d *scriptedDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *scriptedDriver) Navigate(ctx context.Context, url string) error {
	d.record("navigate " + url)
	return nil
}

func (d *scriptedDriver) CurrentURL(ctx context.Context) (string, error) {
	return signedOutURL, nil
}

func (d *scriptedDriver) WaitElement(ctx context.Context, selector string) error {
	d.record("wait " + selector)
	if selector == d.missing {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

func (d *scriptedDriver) SendKeys(ctx context.Context, selector, text string) error {
	d.record("keys " + selector + " " + text)
	return nil
}

func (d *scriptedDriver) Click(ctx context.Context, selector string) error {
	d.record("click " + selector)
	if d.onClick != nil {
		d.onClick()
	}
	return nil
}

type countingLock struct {
	mu       sync.Mutex
	released int
}

func (l *countingLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

// buildHarness replaces the orchestrator with a session over scriptedDriver.
type buildHarness struct {
	driver       *scriptedDriver
	lock         *countingLock
	cfg          *config.Config
	started      int
	disconnected bool
}

func stubStartSession(t *testing.T, env *testEnv) *buildHarness {
	t.Helper()
	h := &buildHarness{driver: &scriptedDriver{}, lock: &countingLock{}}
	orig := startSession
	t.Cleanup(func() { startSession = orig })

	startSession = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*session.BrowserSession, error) {
		h.started++
		h.cfg = cfg
		return session.New(session.Resources{
			Driver:     h.driver,
			Disconnect: func() { h.disconnected = true },
			Registry:   registry.New(env.registryPath),
			Lock:       h.lock,
		}, logger), nil
	}
	return h
}

func TestBuildRequiresCredentials(t *testing.T) {
	env := newTestEnv(t, "")
	h := stubStartSession(t, env)

	_, err := env.executeCommand(context.Background(), "build")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrMissingCredentials))
	assert.Contains(t, err.Error(), "EBAY_EMAIL")
	assert.Zero(t, h.started, "nothing may be started without credentials")
}

func TestBuildLeavesSessionRunning(t *testing.T) {
	env := newTestEnv(t, "")
	h := stubStartSession(t, env)
	t.Setenv("EBAY_EMAIL", "seller@example.com")
	t.Setenv("EBAY_PASSWORD", "hunter2")
	require.NoError(t, registry.New(env.registryPath).Write(registry.PIDs{Driver: 1, Display: 2, FrameServer: 3}))

	out, err := env.executeCommand(context.Background(), "build", "-o", "15")
	require.NoError(t, err, "build returns once signed in")

	require.NotNil(t, h.cfg)
	assert.Equal(t, 15, h.cfg.Build.OfferPercentage)
	assert.False(t, h.cfg.Build.Wait)
	assert.Equal(t, []string{
		"navigate " + signedOutURL,
		"wait #userid",
		"keys #userid seller@example.com",
		"wait #signin-continue-btn",
		"click #signin-continue-btn",
	}, h.driver.calls)

	assert.Equal(t, 1, h.lock.released)
	assert.FileExists(t, env.registryPath, "the running session keeps its registry for teardown")
	assert.False(t, h.disconnected, "processes stay up for teardown")
	assert.Contains(t, out, "VNC port 5900")
	assert.Contains(t, out, "ebay teardown")
	assert.NotContains(t, out, "Press Ctrl+C")
}

func TestBuildClosesSessionOnInterrupt(t *testing.T) {
	env := newTestEnv(t, "")
	h := stubStartSession(t, env)
	t.Setenv("EBAY_EMAIL", "seller@example.com")
	t.Setenv("EBAY_PASSWORD", "hunter2")
	require.NoError(t, registry.New(env.registryPath).Write(registry.PIDs{Driver: 1, Display: 2, FrameServer: 3}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Interrupt once the sign-in has finished.
	h.driver.onClick = cancel

	out, err := env.executeCommand(ctx, "build", "--wait")
	require.NoError(t, err, "an interrupt is a clean shutdown")

	assert.True(t, h.cfg.Build.Wait)
	assert.Equal(t, 1, h.lock.released)
	assert.True(t, h.disconnected)
	assert.NoFileExists(t, env.registryPath)
	assert.Contains(t, out, "Press Ctrl+C")
}

func TestBuildWaitFromEnvironment(t *testing.T) {
	env := newTestEnv(t, "")
	h := stubStartSession(t, env)
	t.Setenv("EBAY_EMAIL", "seller@example.com")
	t.Setenv("EBAY_PASSWORD", "hunter2")
	t.Setenv("EBAY_BUILD_WAIT", "true")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.driver.onClick = cancel

	out, err := env.executeCommand(ctx, "build")
	require.NoError(t, err)
	assert.True(t, h.cfg.Build.Wait)
	assert.Contains(t, out, "Press Ctrl+C")
}

func TestBuildSignInFailureClosesSession(t *testing.T) {
	env := newTestEnv(t, "")
	h := stubStartSession(t, env)
	h.driver.missing = "#signin-continue-btn"
	t.Setenv("EBAY_EMAIL", "seller@example.com")
	t.Setenv("EBAY_PASSWORD", "hunter2")

	_, err := env.executeCommand(context.Background(), "build")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrElementNotFound))
	assert.Equal(t, "continue", failure.StepOf(err))
	assert.Equal(t, 1, h.lock.released, "a failed build releases everything")
	assert.True(t, h.disconnected)
}

func TestBuildReadsCredentialsFromEnvFile(t *testing.T) {
	env := newTestEnv(t, "")
	h := stubStartSession(t, env)

	// Unset for the test; t.Setenv restores the original afterwards.
	require.NoError(t, os.Unsetenv("EBAY_EMAIL"))
	require.NoError(t, os.Unsetenv("EBAY_PASSWORD"))
	envFile := filepath.Join(env.dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("EBAY_EMAIL=dotenv@example.com\nEBAY_PASSWORD=secret\n"), 0o600))

	root := NewRootCommand()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"--config", env.configPath, "--env-file", envFile, "build"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.NotNil(t, h.cfg)
	assert.Equal(t, "dotenv@example.com", h.cfg.Credentials.Email)
	assert.Contains(t, h.driver.calls, "keys #userid dotenv@example.com")
}

func TestExecuteReturnsCommandError(t *testing.T) {
	env := newTestEnv(t, "")
	stubKiller(t)

	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = []string{"ebay", "--config", env.configPath, "--env-file", "", "teardown"}

	err := Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrRegistryNotFound))
}
