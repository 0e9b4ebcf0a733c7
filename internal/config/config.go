// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Display     DisplayConfig     `mapstructure:"display" yaml:"display"`
	FrameServer FrameServerConfig `mapstructure:"frame_server" yaml:"frame_server"`
	Driver      DriverConfig      `mapstructure:"driver" yaml:"driver"`
	Profile     ProfileConfig     `mapstructure:"profile" yaml:"profile"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	SignIn      SignInConfig      `mapstructure:"signin" yaml:"signin"`
	Build       BuildConfig       `mapstructure:"build" yaml:"build"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// LogDir receives one file per calendar day unless LogFile is set.
	LogDir     string      `mapstructure:"log_dir" yaml:"log_dir"`
	LogFile    string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int         `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool        `mapstructure:"compress" yaml:"compress"`
	Colors     ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DisplayConfig configures the virtual display server (Xvfb).
type DisplayConfig struct {
	Binary string `mapstructure:"binary" yaml:"binary"`
	Number int    `mapstructure:"number" yaml:"number"`
	Screen string `mapstructure:"screen" yaml:"screen"`
}

// Name returns the X display name, e.g. ":99".
func (d DisplayConfig) Name() string {
	return fmt.Sprintf(":%d", d.Number)
}

// FrameServerConfig configures the remote-frame (VNC) server attached to the display.
type FrameServerConfig struct {
	Binary string `mapstructure:"binary" yaml:"binary"`
	Port   int    `mapstructure:"port" yaml:"port"`
}

// DriverConfig configures the automation driver (a Chromium build exposing CDP).
type DriverConfig struct {
	// Candidates are looked up in PATH in order; the first hit wins.
	Candidates       []string      `mapstructure:"candidates" yaml:"candidates"`
	Port             int           `mapstructure:"port" yaml:"port"`
	ReadyTimeout     time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	ImplicitWait     time.Duration `mapstructure:"implicit_wait" yaml:"implicit_wait"`
	Args             []string      `mapstructure:"args" yaml:"args"`
	// Humanize types and clicks with human timing instead of instant CDP input.
	Humanize bool `mapstructure:"humanize" yaml:"humanize"`
}

// Endpoint returns the local HTTP control endpoint of the driver.
func (d DriverConfig) Endpoint() string {
	return fmt.Sprintf("http://127.0.0.1:%d", d.Port)
}

// ProfileConfig controls the ephemeral browser profile.
type ProfileConfig struct {
	Root          string   `mapstructure:"root" yaml:"root"`
	ExtensionPath string   `mapstructure:"extension_path" yaml:"extension_path"`
	ExtensionName string   `mapstructure:"extension_name" yaml:"extension_name"`
	UserAgent     string   `mapstructure:"user_agent" yaml:"user_agent"`
	Platform      string   `mapstructure:"platform" yaml:"platform"`
	Languages     []string `mapstructure:"languages" yaml:"languages"`
}

// SessionConfig holds the lifecycle settings shared by build and teardown.
type SessionConfig struct {
	RegistryPath string `mapstructure:"registry_path" yaml:"registry_path"`
	LockPath     string `mapstructure:"lock_path" yaml:"lock_path"`
	// Settle is the minimum wait after the sign-in page loads; the wait
	// extends up to SettleMax while the location keeps changing.
	Settle            time.Duration `mapstructure:"settle" yaml:"settle"`
	SettleMax         time.Duration `mapstructure:"settle_max" yaml:"settle_max"`
	ChallengeMarker   string        `mapstructure:"challenge_marker" yaml:"challenge_marker"`
	ChallengeInterval time.Duration `mapstructure:"challenge_interval" yaml:"challenge_interval"`
	// ChallengeTimeout of zero waits until the challenge clears or the command is interrupted.
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout" yaml:"challenge_timeout"`
}

// SignInConfig fixes the sign-in page and its two form controls.
type SignInConfig struct {
	URL              string `mapstructure:"url" yaml:"url"`
	EmailSelector    string `mapstructure:"email_selector" yaml:"email_selector"`
	ContinueSelector string `mapstructure:"continue_selector" yaml:"continue_selector"`
}

// BuildConfig holds settings populated from the build command's flags.
type BuildConfig struct {
	OfferPercentage int `mapstructure:"offer_percentage" yaml:"offer_percentage"`
	// Wait keeps the command attached to the session until interrupted.
	Wait bool `mapstructure:"wait" yaml:"wait"`
}

// CredentialsConfig holds the account credentials. Never serialized.
type CredentialsConfig struct {
	Email    string `mapstructure:"email" yaml:"-"`
	Password string `mapstructure:"password" yaml:"-"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "debug")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "ebay")
	v.SetDefault("logger.log_dir", "logs")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Display / frame server --
	v.SetDefault("display.binary", "Xvfb")
	v.SetDefault("display.number", 99)
	v.SetDefault("display.screen", "1280x1024x24")
	v.SetDefault("frame_server.binary", "x11vnc")
	v.SetDefault("frame_server.port", 5900)

	// -- Driver --
	v.SetDefault("driver.candidates", []string{"chromium", "chromium-browser", "google-chrome"})
	v.SetDefault("driver.port", 9222)
	v.SetDefault("driver.ready_timeout", "2s")
	v.SetDefault("driver.handshake_timeout", "10s")
	v.SetDefault("driver.implicit_wait", "10s")
	v.SetDefault("driver.humanize", true)

	// -- Profile --
	v.SetDefault("profile.root", os.TempDir())
	v.SetDefault("profile.extension_path", "./resources/buster")
	v.SetDefault("profile.extension_name", "buster")
	v.SetDefault("profile.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	v.SetDefault("profile.platform", "Win32")
	v.SetDefault("profile.languages", []string{"en-US", "en"})

	// -- Session --
	v.SetDefault("session.registry_path", "/tmp/ebay_driver_pids")
	v.SetDefault("session.lock_path", "/tmp/ebay_driver.lock")
	v.SetDefault("session.settle", "2s")
	v.SetDefault("session.settle_max", "5s")
	v.SetDefault("session.challenge_marker", "captcha")
	v.SetDefault("session.challenge_interval", "2s")
	v.SetDefault("session.challenge_timeout", "0s")

	// -- Sign-in --
	v.SetDefault("signin.url", "https://signin.ebay.com/signin/")
	v.SetDefault("signin.email_selector", "#userid")
	v.SetDefault("signin.continue_selector", "#signin-continue-btn")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials come from the environment (or .env), never from the config file.
	_ = v.BindEnv("credentials.email", "EBAY_EMAIL")
	_ = v.BindEnv("credentials.password", "EBAY_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every configured filesystem path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Logger.LogDir,
		&c.Logger.LogFile,
		&c.Profile.Root,
		&c.Profile.ExtensionPath,
		&c.Session.RegistryPath,
		&c.Session.LockPath,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("cannot expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Display.Number < 0 {
		return fmt.Errorf("display.number must not be negative")
	}
	if c.Driver.Port <= 0 || c.Driver.Port > 65535 {
		return fmt.Errorf("driver.port must be a valid TCP port")
	}
	if c.FrameServer.Port <= 0 || c.FrameServer.Port > 65535 {
		return fmt.Errorf("frame_server.port must be a valid TCP port")
	}
	if len(c.Driver.Candidates) == 0 {
		return fmt.Errorf("driver.candidates must name at least one executable")
	}
	if c.Session.RegistryPath == "" || c.Session.LockPath == "" {
		return fmt.Errorf("session.registry_path and session.lock_path are required")
	}
	if filepath.Clean(c.Session.RegistryPath) == filepath.Clean(c.Session.LockPath) {
		return fmt.Errorf("session.registry_path and session.lock_path must differ")
	}
	if strings.TrimSpace(c.Session.ChallengeMarker) == "" {
		return fmt.Errorf("session.challenge_marker must not be empty")
	}
	if c.Session.ChallengeInterval <= 0 {
		return fmt.Errorf("session.challenge_interval must be a positive duration")
	}
	if c.Session.Settle < 0 || c.Session.SettleMax < 0 {
		return fmt.Errorf("session.settle and session.settle_max must not be negative")
	}
	if c.Session.ChallengeTimeout < 0 {
		return fmt.Errorf("session.challenge_timeout must not be negative")
	}
	if c.SignIn.URL == "" || c.SignIn.EmailSelector == "" || c.SignIn.ContinueSelector == "" {
		return fmt.Errorf("signin.url, signin.email_selector and signin.continue_selector are required")
	}
	return nil
}

// ValidateCredentials reports whether both account credentials are present.
func (c *CredentialsConfig) ValidateCredentials() error {
	var missing []string
	if c.Email == "" {
		missing = append(missing, "EBAY_EMAIL")
	}
	if c.Password == "" {
		missing = append(missing, "EBAY_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
