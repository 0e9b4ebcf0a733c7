package orchestrator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/ebaybot/internal/config"
	"github.com/xkilldash9x/ebaybot/internal/process"
	"github.com/xkilldash9x/ebaybot/internal/profile"
)

// displaySpec runs e.g. "Xvfb :99 -screen 0 1280x1024x24".
func displaySpec(cfg config.DisplayConfig) process.Spec {
	return process.Spec{
		Role: RoleDisplay,
		Path: cfg.Binary,
		Args: []string{cfg.Name(), "-screen", "0", cfg.Screen},
	}
}

// frameServerSpec runs e.g. "x11vnc -display :99 -nopw -forever -rfbport 5900".
func frameServerSpec(display config.DisplayConfig, cfg config.FrameServerConfig) process.Spec {
	return process.Spec{
		Role: RoleFrameServer,
		Path: cfg.Binary,
		Args: []string{
			"-display", display.Name(),
			"-nopw",
			"-forever",
			"-rfbport", strconv.Itoa(cfg.Port),
		},
	}
}

func driverSpec(path string, cfg *config.Config, prof *profile.Profile) process.Spec {
	return process.Spec{
		Role: RoleDriver,
		Path: path,
		Args: buildDriverArgs(cfg, prof),
		Env:  []string{"DISPLAY=" + cfg.Display.Name()},
	}
}

func buildDriverArgs(cfg *config.Config, prof *profile.Profile) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", cfg.Driver.Port),
		fmt.Sprintf("--user-data-dir=%s", prof.Dir),
		fmt.Sprintf("--load-extension=%s", prof.ExtensionDir),
		fmt.Sprintf("--disable-extensions-except=%s", prof.ExtensionDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-blink-features=AutomationControlled",
		"--disable-features=Translate,MediaRouter",
		"--disable-session-crashed-bubble",
		"--password-store=basic",
		"--disable-dev-shm-usage",
	}
	if ua := prof.Persona.UserAgent; ua != "" {
		args = append(args, fmt.Sprintf("--user-agent=%s", ua))
	}
	if len(prof.Persona.Languages) > 0 {
		args = append(args, fmt.Sprintf("--lang=%s", prof.Persona.Languages[0]))
	}
	if w, h, ok := screenSize(cfg.Display.Screen); ok {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", w, h), "--window-position=0,0")
	}
	args = append(args, cfg.Driver.Args...)

	// A blank tab guarantees a target exists to attach to.
	return append(args, "about:blank")
}

// screenSize parses the "WxHxD" geometry Xvfb takes.
func screenSize(screen string) (width, height int, ok bool) {
	parts := strings.Split(screen, "x")
	if len(parts) < 2 {
		return 0, 0, false
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
