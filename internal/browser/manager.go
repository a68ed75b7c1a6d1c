// Package browser owns the browser engine used by one site adapter pass.
//
// A Manager is exclusively owned by a single adapter invocation and is not
// safe for concurrent use.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnavailable is returned when no engine in the fallback chain starts.
var ErrUnavailable = errors.New("browser unavailable")

type Manager struct {
	launcher     Launcher
	engines      []string
	restartEvery int
	logger       *slog.Logger

	session   Session
	processed int
	restarts  int
}

// NewManager creates a manager that tries engines in order and recycles
// the session after restartEvery successfully processed items (0 disables
// the cadence).
func NewManager(launcher Launcher, engines []string, restartEvery int, logger *slog.Logger) *Manager {
	if len(engines) == 0 {
		engines = []string{EngineChromium, EngineFirefox, EngineWebKit}
	}
	return &Manager{
		launcher:     launcher,
		engines:      engines,
		restartEvery: restartEvery,
		logger:       logger.With("component", "browser_manager"),
	}
}

// Acquire returns a ready session, starting one lazily and recycling it
// when the processed-item cadence is reached.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.session == nil {
		if err := m.start(); err != nil {
			return nil, err
		}
		return m.session, nil
	}

	if m.restartEvery > 0 && m.processed >= m.restartEvery {
		if err := m.Restart(ctx, "cadence"); err != nil {
			return nil, err
		}
	}

	return m.session, nil
}

// MarkProcessed records one successfully processed item.
func (m *Manager) MarkProcessed() {
	m.processed++
}

// Restart tears the current session down and starts a new one.
func (m *Manager) Restart(ctx context.Context, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.logger.Info("restarting browser session",
		"reason", reason,
		"processed", m.processed,
		"restarts", m.restarts+1)

	m.closeSession()
	m.processed = 0
	m.restarts++

	return m.start()
}

// Release closes the session. It is safe to call more than once.
func (m *Manager) Release() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	if err != nil {
		return fmt.Errorf("failed to release browser session: %w", err)
	}
	return nil
}

func (m *Manager) Restarts() int {
	return m.restarts
}

func (m *Manager) start() error {
	var errs []error
	for _, engine := range m.engines {
		s, err := m.launcher.Launch(engine)
		if err != nil {
			m.logger.Warn("browser engine failed to start", "engine", engine, "error", err)
			errs = append(errs, err)
			continue
		}
		m.session = s
		m.logger.Info("browser session started", "engine", engine)
		return nil
	}
	return fmt.Errorf("%w after %d engine(s): %v", ErrUnavailable, len(m.engines), errors.Join(errs...))
}

func (m *Manager) closeSession() {
	if m.session == nil {
		return
	}
	if err := m.session.Close(); err != nil {
		m.logger.Warn("failed to close browser session", "engine", m.session.Engine(), "error", err)
	}
	m.session = nil
}
