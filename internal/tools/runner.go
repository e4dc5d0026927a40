package tools

import (
	"context"
	"errors"
	"os/exec"
)

// maxOutput caps how much of each output stream a command may leave in
// memory.
const maxOutput = 64 << 10

// CommandRunner abstracts host command execution.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, code int32, err error)
}

// ExecRunner executes commands on the local host, killing them when ctx
// ends. Exit code 127 means the command could not be started.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	var stdout, stderr tailBuffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	switch {
	case err == nil:
		return stdout.buf, stderr.buf, 0, nil
	case ctx.Err() != nil:
		return stdout.buf, stderr.buf, -1, ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.buf, stderr.buf, int32(exitErr.ExitCode()), err
	}
	return stdout.buf, stderr.buf, 127, err
}

// tailBuffer keeps the last maxOutput bytes written to it.
type tailBuffer struct {
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - maxOutput; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}
