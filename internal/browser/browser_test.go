package browser

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	engine string
	closed int
}

func (s *fakeSession) Engine() string { return s.engine }

func (s *fakeSession) Open(context.Context, string, time.Duration) (Page, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeLauncher struct {
	failing  map[string]bool
	launched []string
	sessions []*fakeSession
}

func (l *fakeLauncher) Launch(engine string) (Session, error) {
	l.launched = append(l.launched, engine)
	if l.failing[engine] {
		return nil, errors.New(engine + " failed to start")
	}
	s := &fakeSession{engine: engine}
	l.sessions = append(l.sessions, s)
	return s, nil
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Equal(t, "uk-UA", opts.Locale)
}

func TestManagerEngineFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back in order", func(t *testing.T) {
		l := &fakeLauncher{failing: map[string]bool{EngineChromium: true}}
		m := NewManager(l, nil, 10, slog.Default())

		s, err := m.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, EngineFirefox, s.Engine())
		assert.Equal(t, []string{EngineChromium, EngineFirefox}, l.launched)
	})

	t.Run("all engines fail", func(t *testing.T) {
		l := &fakeLauncher{failing: map[string]bool{EngineChromium: true, EngineFirefox: true, EngineWebKit: true}}
		m := NewManager(l, nil, 10, slog.Default())

		_, err := m.Acquire(ctx)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Len(t, l.launched, 3)
	})
}

func TestManagerRestartCadence(t *testing.T) {
	ctx := context.Background()
	const n = 10

	l := &fakeLauncher{}
	m := NewManager(l, []string{EngineChromium}, n, slog.Default())

	for i := 0; i < n; i++ {
		_, err := m.Acquire(ctx)
		require.NoError(t, err)
		m.MarkProcessed()
	}
	assert.Equal(t, 0, m.Restarts())
	assert.Len(t, l.launched, 1)

	_, err := m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Restarts())
	assert.Len(t, l.launched, 2)
	assert.Equal(t, 1, l.sessions[0].closed)

	// The counter resets, so the next acquisition does not restart again.
	_, err = m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Restarts())
}

func TestManagerRestartAndRelease(t *testing.T) {
	ctx := context.Background()
	l := &fakeLauncher{}
	m := NewManager(l, []string{EngineChromium}, 0, slog.Default())

	_, err := m.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Restart(ctx, "transient_browser"))
	assert.Equal(t, 1, m.Restarts())
	assert.Equal(t, 1, l.sessions[0].closed)

	require.NoError(t, m.Release())
	require.NoError(t, m.Release())
	assert.Equal(t, 1, l.sessions[1].closed)
}
