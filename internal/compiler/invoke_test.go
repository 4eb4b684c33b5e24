package compiler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeCompilerScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler script is a POSIX shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-compiler.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0700))
	return path
}

func TestInvokeCapturesStdoutStderrAndZeroExitCode(t *testing.T) {
	script := fakeCompilerScript(t, "echo out-line; echo err-line 1>&2; exit 0\n")

	result, err := Invoke(context.Background(), "/bin/sh", []string{script}, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, string(result.Stdout), "out-line")
	assert.Contains(t, string(result.Stderr), "err-line")
}

func TestInvokeCapturesNonZeroExitCode(t *testing.T) {
	script := fakeCompilerScript(t, "exit 2\n")

	result, err := Invoke(context.Background(), "/bin/sh", []string{script}, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExitCode)
}

func TestInvokeRunsInGivenWorkingDirectory(t *testing.T) {
	script := fakeCompilerScript(t, "pwd\n")
	workDir := t.TempDir()

	resolvedWorkDir, err := filepath.EvalSymlinks(workDir)
	require.NoError(t, err)

	result, err := Invoke(context.Background(), "/bin/sh", []string{script}, workDir, nil)
	require.NoError(t, err)
	assert.Contains(t, string(result.Stdout), resolvedWorkDir)
}

func TestInvokeReturnsErrorForMissingExecutable(t *testing.T) {
	_, err := Invoke(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), nil, t.TempDir(), nil)
	assert.Error(t, err)
}
