package cli

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/rtbox/rtbox/internal/models"
	"github.com/spf13/cobra"
)

// ExitError carries a child's exit code out of a RunE handler without
// calling os.Exit there.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return models.NewError(models.ErrInvalidConfig, "", "%w", err)
}

// usageArgs turns cobra's argument validation failures into usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// ExitCode maps an error returned by the command tree to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return models.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var sig *SignalCause
	if errors.As(err, &sig) {
		return models.SignalExitBase + int(sig.Signal)
	}
	// canceled without a recorded signal: report it as an interrupt
	if errors.Is(err, context.Canceled) {
		return models.SignalExitBase + int(syscall.SIGINT)
	}
	return models.ExitCodeFor(err)
}
