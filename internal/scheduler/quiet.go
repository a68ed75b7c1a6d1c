package scheduler

import (
	"fmt"
	"time"
)

// QuietWindow is a daily time-of-day range during which no cycle runs. The
// range is half open and may cross midnight. A zero window is disabled.
type QuietWindow struct {
	start int
	end   int
}

// ParseQuietWindow parses two HH:MM values. Equal values disable the window.
func ParseQuietWindow(start, end string) (QuietWindow, error) {
	s, err := parseClock(start)
	if err != nil {
		return QuietWindow{}, fmt.Errorf("invalid quiet window start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietWindow{}, fmt.Errorf("invalid quiet window end: %w", err)
	}
	return QuietWindow{start: s, end: e}, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (w QuietWindow) Enabled() bool {
	return w.start != w.end
}

// Contains reports whether t falls inside the window, in t's location.
func (w QuietWindow) Contains(t time.Time) bool {
	if !w.Enabled() {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	return m >= w.start || m < w.end
}

func (w QuietWindow) String() string {
	if !w.Enabled() {
		return "disabled"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.start/60, w.start%60, w.end/60, w.end%60)
}
