// Package action tracks one user-triggered asynchronous operation, such as
// creating a key or opening the billing portal, so a page can disable its
// control while the call runs and show an inline error afterwards.
package action

import (
	"context"
	"errors"
	"sync"
)

type State int

const (
	Idle State = iota
	InFlight
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// An Action is safe for concurrent use. The zero value is Idle.
type Action struct {
	// Message is shown to the user when fn fails. The underlying error is
	// only logged.
	Message string

	Logf func(fmt string, args ...any)

	mu    sync.Mutex
	state State
	msg   string
}

func (a *Action) logf(fmt string, args ...any) {
	if a.Logf != nil {
		a.Logf(fmt, args...)
	}
}

// Run marks a in flight, calls fn, and records the outcome. The in-flight
// mark is cleared however fn returns, including by panic.
//
// If fn's error implements UserMessage, that message is shown instead of
// a.Message.
func (a *Action) Run(ctx context.Context, fn func(context.Context) error) (err error) {
	a.mu.Lock()
	a.state = InFlight
	a.msg = ""
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.state == InFlight {
			// reached only on panic
			a.state = Idle
		}
	}()

	err = fn(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.logf("action: %v", err)
		a.state = Failed
		a.msg = messageFor(err, a.Message)
		return err
	}
	a.state = Succeeded
	return nil
}

// Clear dismisses the last outcome.
func (a *Action) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != InFlight {
		a.state = Idle
		a.msg = ""
	}
}

func (a *Action) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Action) InFlight() bool { return a.State() == InFlight }

// Err returns the message of the last failure, or "".
func (a *Action) Err() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.msg
}

// UserMessage is implemented by errors that carry text fit to show the user
// verbatim.
type UserMessage interface {
	UserMessage() string
}

// UserError wraps err so that Run shows msg instead of the action's
// generic message.
func UserError(err error, msg string) error {
	return &userError{err, msg}
}

type userError struct {
	err error
	msg string
}

func (e *userError) Error() string       { return e.err.Error() }
func (e *userError) Unwrap() error       { return e.err }
func (e *userError) UserMessage() string { return e.msg }

func messageFor(err error, def string) string {
	var um UserMessage
	if errors.As(err, &um) {
		if m := um.UserMessage(); m != "" {
			return m
		}
	}
	if def == "" {
		return err.Error()
	}
	return def
}
