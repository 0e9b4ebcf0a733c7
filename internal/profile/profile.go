// Package profile provisions the throwaway browser profile a session runs in.
package profile

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/xkilldash9x/ebaybot/internal/browser/stealth"
	"github.com/xkilldash9x/ebaybot/internal/failure"
	"go.uber.org/zap"
)

// DirPrefix names every provisioned profile directory. Teardown sweeps
// leftovers by this prefix.
const DirPrefix = "ebay-profile-"

const (
	preferencesFile = "Preferences"
	extensionsDir   = "extensions"
	defaultDir      = "Default"
)

// Profile is a provisioned profile directory.
type Profile struct {
	Dir          string
	ExtensionDir string
	Persona      stealth.Persona

	fs afero.Fs
}

// Remove deletes the profile directory. Calling it again is harmless.
func (p *Profile) Remove() error {
	if p == nil || p.Dir == "" {
		return nil
	}
	if err := p.fs.RemoveAll(p.Dir); err != nil {
		return fmt.Errorf("failed to remove profile %s: %w", p.Dir, err)
	}
	return nil
}

// Provisioner creates profiles.
type Provisioner struct {
	fs            afero.Fs
	root          string
	extensionPath string
	extensionName string
	persona       stealth.Persona
	logger        *zap.Logger
}

// Options configures a Provisioner.
type Options struct {
	// Fs defaults to the OS filesystem.
	Fs            afero.Fs
	Root          string
	ExtensionPath string
	ExtensionName string
	Persona       stealth.Persona
}

// NewProvisioner builds a Provisioner.
func NewProvisioner(opts Options, logger *zap.Logger) *Provisioner {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Root == "" {
		opts.Root = os.TempDir()
	}
	if opts.ExtensionName == "" {
		opts.ExtensionName = strings.TrimSuffix(filepath.Base(opts.ExtensionPath), filepath.Ext(opts.ExtensionPath))
	}
	return &Provisioner{
		fs:            opts.Fs,
		root:          opts.Root,
		extensionPath: opts.ExtensionPath,
		extensionName: opts.ExtensionName,
		persona:       opts.Persona,
		logger:        logger.Named("profile"),
	}
}

// Provision creates a new profile directory with persona-matching preferences
// and the challenge-solving extension. Nothing is left on disk when it fails.
func (p *Provisioner) Provision() (*Profile, error) {
	// The extension must exist before anything is created.
	extInfo, err := p.fs.Stat(p.extensionPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Error("Missing extension resource", zap.String("path", p.extensionPath))
		}
		return nil, failure.New(failure.CodeDependencyNotFound, "extension", err)
	}
	if !extInfo.IsDir() && !strings.EqualFold(filepath.Ext(p.extensionPath), ".zip") {
		return nil, failure.Newf(failure.CodeDependencyNotFound, "extension",
			"%s is neither an unpacked extension directory nor a .zip archive", p.extensionPath)
	}

	if err := p.fs.MkdirAll(p.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile root %s: %w", p.root, err)
	}
	dir, err := afero.TempDir(p.fs, p.root, DirPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}

	prof := &Profile{
		Dir:          dir,
		ExtensionDir: filepath.Join(dir, extensionsDir, p.extensionName),
		Persona:      p.persona,
		fs:           p.fs,
	}

	if err := p.populate(prof, extInfo.IsDir()); err != nil {
		_ = prof.Remove()
		return nil, err
	}

	p.logger.Info("Provisioned browser profile",
		zap.String("dir", prof.Dir),
		zap.String("extension", prof.ExtensionDir),
	)
	return prof, nil
}

func (p *Provisioner) populate(prof *Profile, extIsDir bool) error {
	prefs, err := json.MarshalIndent(preferences(p.persona), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := p.fs.MkdirAll(filepath.Join(prof.Dir, defaultDir), 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", defaultDir, err)
	}
	if err := afero.WriteFile(p.fs, filepath.Join(prof.Dir, defaultDir, preferencesFile), prefs, 0o600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}

	if extIsDir {
		err = copyDir(p.fs, p.extensionPath, prof.ExtensionDir)
	} else {
		err = extractZip(p.fs, p.extensionPath, prof.ExtensionDir)
	}
	if err != nil {
		return fmt.Errorf("failed to install extension: %w", err)
	}
	return nil
}

func copyDir(fsys afero.Fs, src, dst string) error {
	return afero.Walk(fsys, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return fsys.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(fsys, path, target, info.Mode().Perm())
	})
}

func copyFile(fsys afero.Fs, src, dst string, perm os.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func extractZip(fsys afero.Fs, archive, dst string) error {
	data, err := afero.ReadFile(fsys, archive)
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("invalid archive %s: %w", archive, err)
	}
	if err := fsys.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	root := filepath.Clean(dst) + string(os.PathSeparator)
	for _, f := range zr.File {
		target := filepath.Join(dst, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("archive entry %q escapes the extension directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := fsys.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeZipEntry(fsys, f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeZipEntry(fsys afero.Fs, f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := fsys.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
