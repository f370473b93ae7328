package analyzers

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

const defaultToolTimeout = 30 * time.Second

// ToolRunner executes one lint tool invocation inside a working directory.
// A non-zero exit code is data, not an error; lint tools exit non-zero
// whenever they find something.
type ToolRunner interface {
	Run(ctx context.Context, dir string, argv []string) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner runs tools as local subprocesses.
type ExecRunner struct {
	// Timeout bounds a single tool invocation. Zero means the default.
	Timeout time.Duration
}

// Run implements ToolRunner.
func (r *ExecRunner) Run(ctx context.Context, dir string, argv []string) (string, string, int, error) {
	if len(argv) == 0 {
		return "", "", 0, errors.New("empty command")
	}

	timeout := r.Timeout
	if timeout == 0 {
		timeout = defaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), -1, err
		}
	}
	return stdout.String(), stderr.String(), cmd.ProcessState.ExitCode(), nil
}
