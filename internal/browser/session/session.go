// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/ebaybot/internal/registry"
)

// BrowserSession owns everything a running session holds: the three
// auxiliary processes, the driver connection, the profile directory, the
// persisted registry and the single-instance lock. They are released together.
type BrowserSession struct {
	id     string
	logger *zap.Logger

	driver     Driver
	disconnect func()
	processes  []Owned
	profile    Remover
	registry   *registry.Registry
	lock       Releaser

	mu       sync.Mutex
	released bool
}

// Resources are handed to New once all of them have been acquired.
type Resources struct {
	Driver Driver
	// Disconnect closes the control channel. Optional.
	Disconnect func()
	// Processes are killed in slice order on Close.
	Processes []Owned
	Profile   Remover
	Registry  *registry.Registry
	Lock      Releaser
}

// New assembles a session from already acquired resources.
func New(res Resources, logger *zap.Logger) *BrowserSession {
	id := uuid.New().String()
	return &BrowserSession{
		id:         id,
		logger:     logger.Named("session").With(zap.String("session_id", id)),
		driver:     res.Driver,
		disconnect: res.Disconnect,
		processes:  res.Processes,
		profile:    res.Profile,
		registry:   res.Registry,
		lock:       res.Lock,
	}
}

// ID returns the session's unique identifier.
func (s *BrowserSession) ID() string {
	return s.id
}

// Driver returns the control channel.
func (s *BrowserSession) Driver() Driver {
	return s.driver
}

// PIDs returns the recorded process IDs by role.
func (s *BrowserSession) PIDs() map[string]int {
	pids := make(map[string]int, len(s.processes))
	for _, p := range s.processes {
		pids[p.Role] = p.Handle.PID()
	}
	return pids
}

// Close kills the processes, closes the connection, removes the profile and
// the registry and releases the lock. Only the first call does any work.
// ctx bounds how long Close waits for killed processes to exit.
func (s *BrowserSession) Close(ctx context.Context) error {
	if !s.markReleased() {
		return nil
	}
	s.logger.Info("Closing browser session")

	var errs []error
	if s.disconnect != nil {
		s.disconnect()
	}

	for _, p := range s.processes {
		if err := p.Handle.Kill(); err != nil {
			s.logger.Warn("Failed to kill process", zap.String("role", p.Role), zap.Int("pid", p.Handle.PID()), zap.Error(err))
			errs = append(errs, fmt.Errorf("kill %s (pid %d): %w", p.Role, p.Handle.PID(), err))
		}
	}
	// The driver keeps writing into the profile until it is gone.
	var g errgroup.Group
	for _, p := range s.processes {
		p := p
		g.Go(func() error {
			select {
			case <-p.Handle.Done():
			case <-ctx.Done():
				s.logger.Warn("Process did not exit before close deadline", zap.String("role", p.Role))
			}
			return nil
		})
	}
	_ = g.Wait()

	if s.profile != nil {
		if err := s.profile.Remove(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.registry != nil {
		if err := s.registry.Remove(); err != nil {
			errs = append(errs, fmt.Errorf("remove registry: %w", err))
		}
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Detach releases only the lock. Processes, profile and registry stay behind
// so a later teardown can find and stop them. The control channel is not
// closed: closing it would close the tab, so it drops when the caller exits.
func (s *BrowserSession) Detach() error {
	if !s.markReleased() {
		return nil
	}
	s.logger.Info("Detaching from browser session", zap.Any("pids", s.PIDs()))

	if s.lock != nil {
		return s.lock.Release()
	}
	return nil
}

func (s *BrowserSession) markReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.released = true
	return true
}
