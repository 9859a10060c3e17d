package helper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "helper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRunAndCaptureSuccess(t *testing.T) {
	iv := NewInvoker(nil)
	script := writeScript(t, `echo hello; exit 0`)

	res, err := iv.RunAndCapture(context.Background(), script, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "hello")
}

func TestRunAndCaptureNonZeroExit(t *testing.T) {
	iv := NewInvoker(nil)
	script := writeScript(t, `echo failing; exit 7`)

	res, err := iv.RunAndCapture(context.Background(), script, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
	assert.Contains(t, res.Output, "failing")
}

func TestRunAndCaptureTimeout(t *testing.T) {
	iv := NewInvoker(nil)
	script := writeScript(t, `sleep 5`)

	res, err := iv.RunAndCapture(context.Background(), script, 50*time.Millisecond)

	assert.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestRunAndCaptureEmptyCommandLine(t *testing.T) {
	iv := NewInvoker(nil)
	_, err := iv.RunAndCapture(context.Background(), "", time.Second)
	assert.Error(t, err)
}

func TestOpenPipeStreamsLines(t *testing.T) {
	iv := NewInvoker(nil)
	script := writeScript(t, `echo one; echo two; exit 0`)

	pipe, err := iv.OpenPipe(context.Background(), script, time.Second)
	require.NoError(t, err)

	var lines []string
	for line := range pipe.Lines {
		lines = append(lines, line)
	}
	code := pipe.Wait()

	assert.Equal(t, []string{"one", "two"}, lines)
	assert.Equal(t, 0, code)
}

func TestOpenPipeReportsNonZeroExit(t *testing.T) {
	iv := NewInvoker(nil)
	script := writeScript(t, `echo bad; exit 3`)

	pipe, err := iv.OpenPipe(context.Background(), script, time.Second)
	require.NoError(t, err)

	for range pipe.Lines {
	}
	assert.Equal(t, 3, pipe.Wait())
}
