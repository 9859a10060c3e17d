// Package helper is the thin shim over the external subprocess
// runner: it expands nothing itself (that is internal/template's job)
// but executes an already-expanded command line, enforces
// max_changer_wait, and reports back an exit code plus captured
// diagnostic text, or a line-streaming handle.
package helper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/jesseduffield/kill"
	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of a non-streaming helper invocation.
type Result struct {
	ExitCode int
	Output   string
}

// Invoker runs an expanded helper command line and enforces a timeout.
type Invoker struct {
	Log     *logrus.Entry
	command func(name string, args ...string) *exec.Cmd
}

// NewInvoker constructs an Invoker. A nil logger is replaced with a
// discarding one so callers in tests need not wire one up.
func NewInvoker(log *logrus.Entry) *Invoker {
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = logrus.NewEntry(l)
	}
	return &Invoker{Log: log, command: exec.Command}
}

// SetCommand overrides the function used to build *exec.Cmd, for tests
// that want to stub out the real helper process.
func (iv *Invoker) SetCommand(cmd func(name string, args ...string) *exec.Cmd) {
	iv.command = cmd
}

// RunAndCapture runs commandLine, waiting up to timeout. A helper that
// does not exit within timeout is killed (process group, via
// jesseduffield/kill) and reported as a non-zero-exit failure.
func (iv *Invoker) RunAndCapture(ctx context.Context, commandLine string, timeout time.Duration) (Result, error) {
	argv := str.ToArgv(commandLine)
	if len(argv) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("empty helper command line")
	}

	cmd := iv.command(argv[0], argv[1:]...)
	kill.PrepareForChildren(cmd)

	before := time.Now()
	done := make(chan struct{})
	var out []byte
	var runErr error

	go func() {
		out, runErr = cmd.CombinedOutput()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		_ = kill.Kill(cmd)
		<-done
		iv.Log.Warnf("helper timed out after %s: %q", timeout, commandLine)
		return Result{ExitCode: -1, Output: string(out)}, fmt.Errorf("helper timed out after %s", timeout)
	case <-ctx.Done():
		_ = kill.Kill(cmd)
		<-done
		return Result{ExitCode: -1, Output: string(out)}, ctx.Err()
	}

	iv.Log.Debugf("helper %q: %s", commandLine, time.Since(before))

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{ExitCode: -1, Output: string(out)}, runErr
		}
	}

	return Result{ExitCode: exitCode, Output: string(out)}, nil
}

// Pipe is a streaming handle to a helper's stdout, one line at a time,
// used by the list/listall operator commands to forward output to the
// operator as it arrives instead of buffering it all.
type Pipe struct {
	Lines  <-chan string
	cmd    *exec.Cmd
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Wait blocks until the helper exits and returns its exit code.
func (p *Pipe) Wait() int {
	p.wg.Wait()
	defer p.cancel()
	if err := p.cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		return -1
	}
	return 0
}

// OpenPipe starts commandLine and streams its stdout line by line.
// The channel is closed when the helper's stdout reaches EOF; callers
// must still call Wait to reap the exit code.
func (iv *Invoker) OpenPipe(ctx context.Context, commandLine string, timeout time.Duration) (*Pipe, error) {
	argv := str.ToArgv(commandLine)
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty helper command line")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	kill.PrepareForChildren(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	lines := make(chan string)
	p := &Pipe{Lines: lines, cmd: cmd, cancel: cancel}
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		defer close(lines)

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil && err != io.EOF {
			iv.Log.Warnf("helper pipe read error: %s", err)
		}
	}()

	return p, nil
}
