// ABOUTME: Error taxonomy shared by parser, catalog, pipeline and player
// ABOUTME: Kinds are matched with errors.Is against the exported sentinels
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindData Kind = iota + 1
	KindPlay
	KindPlugin
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data error"
	case KindPlay:
		return "play error"
	case KindPlugin:
		return "plugin error"
	case KindIO:
		return "io error"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is checks.
var (
	ErrData   = &Error{Kind: KindData}
	ErrPlay   = &Error{Kind: KindPlay}
	ErrPlugin = &Error{Kind: KindPlugin}
	ErrIO     = &Error{Kind: KindIO}
)

// Error carries the failing operation, its kind and the underlying cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// DataError wraps err as malformed or empty input.
func DataError(op string, err error) error {
	return &Error{Op: op, Kind: KindData, Err: err}
}

// PlayError wraps err as a rejected playback request.
func PlayError(op string, err error) error {
	return &Error{Op: op, Kind: KindPlay, Err: err}
}

// PluginError wraps err as a missing backend.
func PluginError(op string, err error) error {
	return &Error{Op: op, Kind: KindPlugin, Err: err}
}

// IOError wraps err as a file or network access failure.
func IOError(op string, err error) error {
	return &Error{Op: op, Kind: KindIO, Err: err}
}
