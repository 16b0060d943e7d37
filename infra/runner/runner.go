// Package runner executes task commands as child processes.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/loadshift/loadshift/core/logger"
)

// ExecRunner runs a command line as a child process and measures its
// wall-clock duration. In shell mode the whole line is handed to /bin/sh -c;
// otherwise it is split on whitespace and executed directly.
type ExecRunner struct {
	echo bool
	log  logger.Logger

	// stdout receives the child's combined output when echo is on.
	stdout io.Writer
}

// New creates an ExecRunner. With echo, the child's combined output is
// copied to stdout.
func New(echo bool, log logger.Logger) *ExecRunner {
	return &ExecRunner{echo: echo, log: log, stdout: os.Stdout}
}

// SetOutput redirects echoed output, for tests.
func (r *ExecRunner) SetOutput(w io.Writer) { r.stdout = w }

// Run executes command and returns its wall-clock duration. Output is
// captured either way so failures can be logged with context.
func (r *ExecRunner) Run(ctx context.Context, command string, shell bool) (time.Duration, error) {
	cmd, err := r.build(ctx, command, shell)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)

	if r.echo && buf.Len() > 0 {
		fmt.Fprint(r.stdout, buf.String())
	}
	if runErr != nil {
		r.log.Errorf("command %q failed after %s: %v; output: %s",
			command, elapsed.Round(time.Millisecond), runErr, strings.TrimSpace(buf.String()))
		return elapsed, fmt.Errorf("run %q: %w", command, runErr)
	}
	r.log.Debugf("command %q finished in %s", command, elapsed.Round(time.Millisecond))
	return elapsed, nil
}

func (r *ExecRunner) build(ctx context.Context, command string, shell bool) (*exec.Cmd, error) {
	if shell {
		return exec.CommandContext(ctx, "/bin/sh", "-c", command), nil
	}
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return exec.CommandContext(ctx, argv[0], argv[1:]...), nil
}
