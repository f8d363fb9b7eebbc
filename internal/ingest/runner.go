package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"
)

// stderrTailLines bounds the diagnostic ring kept per command. ffmpeg is
// chatty; only the last lines matter when something breaks.
const stderrTailLines = 40

// CommandError reports a subprocess that exited non-zero, carrying the tail
// of its stderr for the job diagnostic.
type CommandError struct {
	Command    []string
	ExitCode   int
	StderrTail []string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed with exit code %d", strings.Join(e.Command, " "), e.ExitCode)
}

// Diagnostic returns the captured stderr tail, falling back to the error
// text when the command produced no stderr.
func (e *CommandError) Diagnostic() string {
	if len(e.StderrTail) == 0 {
		return e.Error()
	}
	tail := e.StderrTail
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	return strings.Join(tail, "\n")
}

// Command describes one subprocess invocation within a pipeline stage.
type Command struct {
	Name string
	Args []string
	// CaptureStdout collects stdout and returns it; otherwise stdout is
	// discarded.
	CaptureStdout bool
	// UploadID and Stage label debug log lines for the stderr stream.
	UploadID string
	Stage    string
}

// Runner executes pipeline subprocesses. The production implementation
// shells out; tests substitute a scripted fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands via os/exec, draining stdout and stderr
// concurrently and joining both drains before inspecting the exit code.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	var stdout io.ReadCloser
	if c.CaptureStdout {
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Name, err)
	}

	var (
		tail   []string
		output []byte
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		tail = drainStderr(stderr, c.UploadID, c.Stage)
		return nil
	})
	if stdout != nil {
		g.Go(func() error {
			data, readErr := io.ReadAll(stdout)
			output = data
			return readErr
		})
	}

	drainErr := g.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &CommandError{
			Command:    append([]string{c.Name}, c.Args...),
			ExitCode:   code,
			StderrTail: tail,
		}
	}
	if drainErr != nil {
		return nil, fmt.Errorf("read %s output: %w", c.Name, drainErr)
	}
	return output, nil
}

// drainStderr reads stderr line by line, logging at debug level and keeping
// only the most recent stderrTailLines lines.
func drainStderr(r io.Reader, uploadID, stage string) []string {
	tail := make([]string, 0, stderrTailLines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		slog.Debug("pipeline stderr", "upload_id", uploadID, "stage", stage, "line", line)
		if len(tail) == stderrTailLines {
			copy(tail, tail[1:])
			tail = tail[:stderrTailLines-1]
		}
		tail = append(tail, line)
	}
	return tail
}
