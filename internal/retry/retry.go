// Package retry classifies crawl failures and retries operations whose
// failure is attributed to the browser rather than the item itself.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Kind int

const (
	KindItem Kind = iota
	KindTransientBrowser
	KindTransientMemory
)

func (k Kind) String() string {
	switch k {
	case KindTransientBrowser:
		return "transient_browser"
	case KindTransientMemory:
		return "transient_memory"
	default:
		return "item"
	}
}

// Transient reports whether a session restart may fix the failure.
func (k Kind) Transient() bool {
	return k == KindTransientBrowser || k == KindTransientMemory
}

// Fault is an error annotated with its classification.
type Fault struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s fault after %d attempt(s): %v", f.Kind, f.Attempts, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Classifier maps an error onto a fault kind.
type Classifier func(err error) Kind

var memorySignatures = []string{
	"heap growth",
	"javascript heap out of memory",
	"out of memory",
	"allocation failed",
}

var browserSignatures = []string{
	"target closed",
	"target page, context or browser has been closed",
	"browser has been closed",
	"browser closed",
	"connection lost",
	"connection closed",
	"connection refused",
	"websocket",
	"crashed",
	"page crashed",
	"ns_error_",
	"playwright connection",
	"driver exited",
}

// Classify is the default classifier driven by known error signatures.
func Classify(err error) Kind {
	if err == nil {
		return KindItem
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range memorySignatures {
		if strings.Contains(msg, sig) {
			return KindTransientMemory
		}
	}
	for _, sig := range browserSignatures {
		if strings.Contains(msg, sig) {
			return KindTransientBrowser
		}
	}
	return KindItem
}

// Policy retries an operation while its failures classify as transient.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Classify    Classifier
	Logger      *slog.Logger
}

// Recover is invoked between attempts after a transient failure, typically
// to recycle the browser session.
type Recover func(ctx context.Context, kind Kind, err error) error

// Do runs fn until it succeeds, fails with an item-specific error, or the
// attempt ceiling is reached. The returned error is always a *Fault.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error, onTransient Recover) error {
	classify := p.Classify
	if classify == nil {
		classify = Classify
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var kind Kind
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		kind = classify(lastErr)
		if !kind.Transient() {
			return &Fault{Kind: kind, Attempts: attempt, Err: lastErr}
		}
		if attempt == maxAttempts {
			break
		}

		logger.Warn("transient failure, recovering",
			"op", op,
			"fault", kind.String(),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", lastErr)

		if onTransient != nil {
			if err := onTransient(ctx, kind, lastErr); err != nil {
				return &Fault{Kind: KindItem, Attempts: attempt, Err: fmt.Errorf("failed to recover from %s: %w", kind, err)}
			}
		}

		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return &Fault{Kind: kind, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(p.Delay * time.Duration(attempt)):
			}
		}
	}

	return &Fault{Kind: kind, Attempts: maxAttempts, Err: lastErr}
}
