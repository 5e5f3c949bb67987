// Package admin drives the out-of-process collaborators of the probe: the
// administrative encryption tool of the server under test and the process
// table used to sample the server's memory. Processes are spawned only
// through the Runner interface so callers can substitute a fake.
package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// ExtraInputFD is the descriptor number at which a child sees
// Command.ExtraInput.
const ExtraInputFD = 3

// Command describes one process invocation.
type Command struct {
	Path string
	Args []string

	// Input is written to the child's stdin when not nil.
	Input []byte

	// ExtraInput is written to a pipe the child inherits as ExtraInputFD
	// when not nil.
	ExtraInput []byte
}

// Result is the outcome of a process that ran to completion.
type Result struct {
	Output []byte // stdout
	Status int    // exit status
}

// Runner runs a command to completion. A non-zero exit status is reported in
// Result, not as an error; errors mean the process could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env lists environment variables passed through to children. Nil
	// inherits PATH, HOME, USER and the temp directory variables.
	Env    []string
	Logger *slog.Logger // nil → slog.Default()
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	env := r.Env
	if env == nil {
		env = inheritEnv("PATH", "HOME", "USER", "TMPDIR", "TMP", "TEMP")
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Input != nil {
		cmd.Stdin = bytes.NewReader(c.Input)
	}

	var extraR, extraW *os.File
	if c.ExtraInput != nil {
		var err error
		extraR, extraW, err = os.Pipe()
		if err != nil {
			return Result{}, fmt.Errorf("create input pipe: %w", err)
		}
		// ExtraFiles[0] becomes fd 3 in the child.
		cmd.ExtraFiles = []*os.File{extraR}
	}

	if err := cmd.Start(); err != nil {
		if extraR != nil {
			extraR.Close()
			extraW.Close()
		}
		return Result{}, fmt.Errorf("start %s: %w", c.Path, err)
	}

	writeErr := make(chan error, 1)
	if extraW != nil {
		// The child owns the read end now.
		extraR.Close()
		go func() {
			_, err := extraW.Write(c.ExtraInput)
			extraW.Close()
			writeErr <- err
		}()
	} else {
		writeErr <- nil
	}

	logger.Debug("spawned process", slog.String("path", c.Path), slog.Int("pid", cmd.Process.Pid))

	waitErr := cmd.Wait()
	if err := <-writeErr; err != nil {
		logger.Debug("extra input not fully consumed", slog.String("path", c.Path), slog.String("error", err.Error()))
	}

	res := Result{Output: stdout.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0:
		res.Status = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("run %s: %w", c.Path, waitErr)
	}

	if stderr.Len() > 0 {
		logger.Debug("process stderr", slog.String("path", c.Path), slog.String("stderr", stderr.String()))
	}
	logger.Debug("process exited", slog.String("path", c.Path), slog.Int("status", res.Status))
	return res, nil
}

// inheritEnv returns "KEY=VALUE" strings for the named env vars that are set.
func inheritEnv(keys ...string) []string {
	env := []string{}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			env = append(env, k+"="+v)
		}
	}
	return env
}
