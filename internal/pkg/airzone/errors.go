package airzone

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady       = errors.New("session tree not built")
	ErrUnknownBinding = errors.New("no entity bound to path")
)

type AuthReason string

const (
	ReasonInvalidCredentials AuthReason = "invalid_credentials"
	ReasonRemote             AuthReason = "remote"
)

// AuthError aborts a whole pass. The tree is never touched after one.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// FetchError abandons one subtree for the current cycle.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("fetch roots: %v", e.Err)
	}
	return fmt.Sprintf("fetch children of %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// MappingError degrades a single field to unknown or unset.
type MappingError struct {
	Path  string
	Field string
	Raw   string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map %s.%s from %q: %v", e.Path, e.Field, e.Raw, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// CommandError is reported on the session error channel. Commands are never retried.
type CommandError struct {
	ID     string
	Path   string
	Option string
	Value  any
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s %s=%v on %s: %v", e.ID, e.Option, e.Value, e.Path, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

var (
	errUnknownCode = errors.New("unknown code")
	errNotNumeric  = errors.New("not numeric")
)
