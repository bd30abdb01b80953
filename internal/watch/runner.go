package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime/debug"

	"trustwatch/internal/scan"
)

// Runner executes one scan to completion.
type Runner interface {
	// RunScan returns the run identifier when known.
	RunScan(ctx context.Context) (string, error)
}

// Scanner is the in-process scan unit.
type Scanner interface {
	Run(ctx context.Context) (scan.Result, error)
}

// InlineRunner runs the pipeline in the daemon process. Panics are recovered
// and reported as errors so the watch loop survives them.
type InlineRunner struct {
	Scanner Scanner
}

// RunScan implements Runner.
func (r InlineRunner) RunScan(ctx context.Context) (runID string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("scan panicked: %v\n%s", recovered, debug.Stack())
		}
	}()
	result, err := r.Scanner.Run(ctx)
	return result.RunID, err
}

// ProcessRunner re-executes the trustwatch binary with the scan subcommand so
// a crashing scan cannot take the daemon down with it.
type ProcessRunner struct {
	Executable string
	Args       []string
	Env        []string
	Stdout     io.Writer
	Stderr     io.Writer
}

// ExitError reports a scan process that ran but exited unsuccessfully.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("scan process exited with code %d", e.Code)
}

// RunScan implements Runner.
func (r ProcessRunner) RunScan(ctx context.Context) (string, error) {
	if r.Executable == "" {
		return "", errors.New("scan executable not configured")
	}
	cmd := exec.CommandContext(ctx, r.Executable, r.Args...)
	if len(r.Env) > 0 {
		cmd.Env = r.Env
	}
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	err := cmd.Run()
	if err == nil {
		return "", nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return "", &ExitError{Code: exitErr.ExitCode()}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", fmt.Errorf("start scan process: %w", err)
}
