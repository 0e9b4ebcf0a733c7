// Package teardown stops a session started by an earlier invocation, using
// only the process registry it left behind.
package teardown

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ebaybot/internal/failure"
	"github.com/xkilldash9x/ebaybot/internal/process"
	"github.com/xkilldash9x/ebaybot/internal/profile"
	"github.com/xkilldash9x/ebaybot/internal/registry"
)

// Outcome is what happened to one registry entry.
type Outcome struct {
	Role registry.Role
	PID  int
	// Skipped is set for a zero PID, which names no process.
	Skipped bool
	Err     error
}

// Report summarizes a teardown.
type Report struct {
	Outcomes        []Outcome
	RegistryRemoved bool
	SweptProfiles   []string
}

// Killed returns the PIDs that were terminated without error, in order.
func (r *Report) Killed() []int {
	var pids []int
	for _, o := range r.Outcomes {
		if !o.Skipped && o.Err == nil {
			pids = append(pids, o.PID)
		}
	}
	return pids
}

// Err joins the per-entry failures, or returns nil when every entry was handled.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

// Controller performs teardowns.
type Controller struct {
	registry    *registry.Registry
	killer      process.Killer
	fs          afero.Fs
	profileRoot string
	logger      *zap.Logger
}

// NewController creates a Controller. An empty profileRoot disables the
// sweep of leftover profile directories.
func NewController(reg *registry.Registry, killer process.Killer, fs afero.Fs, profileRoot string, logger *zap.Logger) *Controller {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Controller{
		registry:    reg,
		killer:      killer,
		fs:          fs,
		profileRoot: profileRoot,
		logger:      logger.Named("teardown"),
	}
}

// Teardown kills every process named in the registry, in recorded order,
// then deletes the registry and any leftover profile directories.
//
// A missing registry is returned as an error and nothing is killed or
// deleted in that case. Problems with single entries are recorded in the
// report and logged as warnings without stopping the remaining entries.
// Cancelling ctx stops before the next kill and leaves the registry in place.
func (c *Controller) Teardown(ctx context.Context) (*Report, error) {
	entries, err := c.registry.Read()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, entry := range entries {
		report.Outcomes = append(report.Outcomes, c.terminate(ctx, entry))
	}

	// An interrupted teardown keeps the registry so it can be retried.
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("teardown interrupted: %w", err)
	}

	if err := c.registry.Remove(); err != nil {
		c.logger.Warn("Failed to delete registry", zap.String("path", c.registry.Path()), zap.Error(err))
	} else {
		report.RegistryRemoved = true
	}

	report.SweptProfiles = c.sweepProfiles()

	c.logger.Info("Teardown complete",
		zap.Ints("killed", report.Killed()),
		zap.Int("profiles_removed", len(report.SweptProfiles)),
	)
	return report, nil
}

func (c *Controller) terminate(ctx context.Context, entry registry.Entry) Outcome {
	out := Outcome{Role: entry.Role, PID: entry.PID}
	log := c.logger.With(zap.String("role", string(entry.Role)))

	if entry.Err != nil {
		log.Warn("Skipping invalid registry entry", zap.Error(entry.Err))
		out.Err = entry.Err
		return out
	}
	if entry.PID == 0 {
		log.Debug("Registry entry is zero, nothing to kill")
		out.Skipped = true
		return out
	}
	if err := ctx.Err(); err != nil {
		out.Err = failure.New(failure.CodeTerminationFailed, string(entry.Role), err)
		return out
	}

	if err := c.killer.Kill(entry.PID); err != nil {
		log.Warn("Failed to kill process", zap.Int("pid", entry.PID), zap.Error(err))
		out.Err = failure.New(failure.CodeTerminationFailed, string(entry.Role), fmt.Errorf("pid %d: %w", entry.PID, err))
		return out
	}
	log.Info("Killed process", zap.Int("pid", entry.PID))
	return out
}

func (c *Controller) sweepProfiles() []string {
	if c.profileRoot == "" {
		return nil
	}
	matches, err := afero.Glob(c.fs, filepath.Join(c.profileRoot, profile.DirPrefix+"*"))
	if err != nil {
		c.logger.Warn("Failed to list leftover profiles", zap.Error(err))
		return nil
	}

	var removed []string
	for _, dir := range matches {
		if ok, _ := afero.IsDir(c.fs, dir); !ok {
			continue
		}
		if err := c.fs.RemoveAll(dir); err != nil {
			c.logger.Warn("Failed to remove leftover profile", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed = append(removed, dir)
	}
	return removed
}
