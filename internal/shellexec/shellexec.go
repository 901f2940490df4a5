// Package shellexec is the narrow adapter between the supervisor and the
// OS shell capabilities it treats as abstract: pgrep/pkill/screen
// invocations, each run as a direct argv (never through /bin/sh) so no
// injection risk is carried by a nick, jar pattern, or command string.
package shellexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result captures the outcome of a shelled-out command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Run executes name with args, always via os/exec directly (no shell),
// and captures stdout/stderr regardless of exit status. A non-zero exit
// is reported via ExitCode, not returned as an error — callers that treat
// "no matches" (e.g. pgrep exiting 1) as a valid outcome inspect ExitCode
// themselves. Run only returns an error when the command could not be
// started at all (binary missing, permission denied) or when ctx ended
// before the command finished, in which case the error is ctx's.
func Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if err == nil {
		return res, nil
	}
	// A context-killed process surfaces as an ExitError ("signal:
	// killed"), which must not be mistaken for the command's own exit.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}
