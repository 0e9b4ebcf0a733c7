// Package registry persists the identifiers of the auxiliary processes of a
// running browser session so that a later invocation can tear them down.
//
// The file holds exactly three decimal PIDs, one per line, in a fixed order:
// automation driver, virtual display, remote-frame server. It is written once,
// atomically, after all three processes are up and never updated in place.
package registry

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/xkilldash9x/ebaybot/internal/failure"
)

// Role names one of the three auxiliary processes.
type Role string

const (
	RoleDriver      Role = "driver"
	RoleDisplay     Role = "display"
	RoleFrameServer Role = "frame_server"
)

// Order is the on-disk line order.
var Order = [3]Role{RoleDriver, RoleDisplay, RoleFrameServer}

// PIDs is the in-memory form of a registry file.
type PIDs struct {
	Driver      int
	Display     int
	FrameServer int
}

// Get returns the PID recorded for a role.
func (p PIDs) Get(r Role) int {
	switch r {
	case RoleDriver:
		return p.Driver
	case RoleDisplay:
		return p.Display
	case RoleFrameServer:
		return p.FrameServer
	}
	return 0
}

// Entry is one parsed line. Err is set (InvalidRegistryEntry) when the line is
// missing or malformed; PID is then zero.
type Entry struct {
	Role Role
	PID  int
	Err  error
}

// Registry is a file-backed process registry.
type Registry struct {
	fs   afero.Fs
	path string
}

// Option customizes a Registry.
type Option func(*Registry)

// WithFs stores the registry on fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(r *Registry) { r.fs = fsys }
}

// New returns a Registry stored at path.
func New(path string, opts ...Option) *Registry {
	r := &Registry{fs: afero.NewOsFs(), path: path}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the location of the registry file.
func (r *Registry) Path() string {
	return r.path
}

// Exists reports whether a registry file is present.
func (r *Registry) Exists() bool {
	_, err := r.fs.Stat(r.path)
	return err == nil
}

// Write persists pids atomically: the content goes to a temp file in the same
// directory which is then renamed over the target.
func (r *Registry) Write(pids PIDs) error {
	var buf bytes.Buffer
	for _, role := range Order {
		fmt.Fprintf(&buf, "%d\n", pids.Get(role))
	}

	tmp, err := afero.TempFile(r.fs, filepath.Dir(r.path), "."+filepath.Base(r.path)+".*")
	if err != nil {
		return failure.New(failure.CodeRegistryWriteFailed, "create", err)
	}
	tmpName := tmp.Name()

	step, err := r.commit(tmp, tmpName, buf.Bytes())
	if err != nil {
		_ = r.fs.Remove(tmpName)
		return failure.New(failure.CodeRegistryWriteFailed, step, err)
	}
	return nil
}

// commit fills and closes tmp, then moves it into place. It names the step
// that failed.
func (r *Registry) commit(tmp afero.File, tmpName string, data []byte) (string, error) {
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "write", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "sync", err
	}
	if err := tmp.Close(); err != nil {
		return "close", err
	}
	if err := r.fs.Chmod(tmpName, 0o644); err != nil {
		return "chmod", err
	}
	if err := r.fs.Rename(tmpName, r.path); err != nil {
		return "rename", err
	}
	return "", nil
}

// Read parses the registry. A missing file yields RegistryNotFound. Any other
// read error is returned as is. Bad lines never fail the whole read: they are
// reported per entry so the caller can still act on the valid ones.
func (r *Registry) Read() ([3]Entry, error) {
	var entries [3]Entry

	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entries, failure.New(failure.CodeRegistryNotFound, r.path, err)
		}
		return entries, fmt.Errorf("failed to read registry %s: %w", r.path, err)
	}

	return Parse(data), nil
}

// Parse decodes registry content. Extra lines after the third are ignored.
func Parse(data []byte) [3]Entry {
	var entries [3]Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))

	for i, role := range Order {
		entries[i].Role = role
		if !scanner.Scan() {
			entries[i].Err = failure.Newf(failure.CodeInvalidRegistryEntry, string(role), "line %d missing", i+1)
			continue
		}
		line := strings.TrimSpace(scanner.Text())
		pid, err := strconv.ParseUint(line, 10, 31)
		if err != nil {
			entries[i].Err = failure.Newf(failure.CodeInvalidRegistryEntry, string(role), "line %d %q: %v", i+1, line, err)
			continue
		}
		entries[i].PID = int(pid)
	}
	return entries
}

// Remove deletes the registry file. A missing file is not an error.
func (r *Registry) Remove() error {
	if err := r.fs.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
