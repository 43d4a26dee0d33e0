package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/grz-tools/grz-submit-core/internal/grzerr"
)

// ExternalCheckerBinary is the opaque deep-checker binary name the worker
// shells out to when validating, if it is on PATH (spec.md §6).
const ExternalCheckerBinary = "grz-check"

// ErrCheckerNotFound is returned by RunExternalChecker when the binary is
// not on PATH; the caller should fall back to the in-process C4/C5 checks.
var ErrCheckerNotFound = errors.New("config: grz-check not found on PATH")

// RunExternalChecker invokes "grz-check <args...>" with stdio inherited
// from the current process, treating it as an opaque subprocess (spec.md
// §1, §4.6). Exit 0 is success (nil error), exit 130 is reported as
// grzerr.ErrCancelled (a SIGINT the checker itself was given a grace window
// to shut down from), and any other non-zero exit is a plain validation
// failure.
func RunExternalChecker(ctx context.Context, args ...string) error {
	binPath, err := exec.LookPath(ExternalCheckerBinary)
	if err != nil {
		return ErrCheckerNotFound
	}

	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()
	if runErr == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		switch exitErr.ExitCode() {
		case 130:
			return grzerr.ErrCancelled
		default:
			return fmt.Errorf("config: %s exited %d: %w", ExternalCheckerBinary, exitErr.ExitCode(), runErr)
		}
	}
	return fmt.Errorf("config: run %s: %w", ExternalCheckerBinary, runErr)
}
