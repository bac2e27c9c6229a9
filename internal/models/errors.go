package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrUnknownDistro ErrorType = iota
	ErrUnsupportedArchitecture
	ErrNetwork
	ErrCorruptArchive
	ErrIO
	ErrArchitectureMismatch
	ErrLinkerNotFound
	ErrNotInstalled
	ErrRemovalFailed
	ErrInstallRace
	ErrVerification
	ErrInvalidConfig
	ErrSpawnFailed
)

// Process exit codes used by the rtbox binary itself. A child's own exit
// code is passed through unchanged and a child killed by a signal exits
// with SignalExitBase plus the signal number.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitUsage      = 2
	ExitStore      = 3
	ExitExecution  = 4
	SignalExitBase = 128
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrUnknownDistro:
		return "UnknownDistro"
	case ErrUnsupportedArchitecture:
		return "UnsupportedArchitecture"
	case ErrNetwork:
		return "NetworkError"
	case ErrCorruptArchive:
		return "CorruptArchive"
	case ErrIO:
		return "IOError"
	case ErrArchitectureMismatch:
		return "ArchitectureMismatch"
	case ErrLinkerNotFound:
		return "LinkerNotFound"
	case ErrNotInstalled:
		return "NotInstalled"
	case ErrRemovalFailed:
		return "RemovalFailed"
	case ErrInstallRace:
		return "InstallRace"
	case ErrVerification:
		return "Verification"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrSpawnFailed:
		return "SpawnFailed"
	default:
		return "Unknown"
	}
}

// ExitCode returns the process exit code for the category.
func (e ErrorType) ExitCode() int {
	switch e {
	case ErrUnknownDistro, ErrUnsupportedArchitecture, ErrInvalidConfig:
		return ExitUsage
	case ErrNetwork, ErrCorruptArchive, ErrIO, ErrVerification,
		ErrArchitectureMismatch, ErrNotInstalled, ErrRemovalFailed, ErrInstallRace:
		return ExitStore
	case ErrLinkerNotFound, ErrSpawnFailed:
		return ExitExecution
	default:
		return ExitFailure
	}
}

// RtboxError represents a categorized failure of an rtbox operation
type RtboxError struct {
	Type   ErrorType
	Distro string
	Err    error
}

// Error implements the error interface
func (e *RtboxError) Error() string {
	if e.Distro != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Distro, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *RtboxError) Unwrap() error {
	return e.Err
}

// NewError builds an RtboxError, formatting the message like fmt.Errorf so
// callers can wrap causes with %w.
func NewError(t ErrorType, distro, format string, args ...any) *RtboxError {
	return &RtboxError{Type: t, Distro: distro, Err: fmt.Errorf(format, args...)}
}

// TypeOf reports the category of the first RtboxError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var re *RtboxError
	if errors.As(err, &re) {
		return re.Type, true
	}
	return 0, false
}

// IsType reports whether err carries an RtboxError of type t.
func IsType(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	if t, ok := TypeOf(err); ok {
		return t.ExitCode()
	}
	return ExitFailure
}
