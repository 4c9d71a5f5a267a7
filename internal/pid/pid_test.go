package pid_test

import (
	"os"
	"os/exec"
	"strconv"
	"testing"

	"codeberg.org/mutker/templogger/internal/errors"
	"codeberg.org/mutker/templogger/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, pid.Write(dir))
	content, err := os.ReadFile(pid.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(content))

	require.NoError(t, pid.Write(dir), "own PID file is not a conflict")

	require.NoError(t, pid.Remove(dir))
	assert.NoFileExists(t, pid.Path(dir))
	require.NoError(t, pid.Remove(dir), "removing twice is fine")
}

func TestStaleFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(pid.Path(dir), []byte("garbage\n"), 0o600))

	require.NoError(t, pid.Write(dir))
	content, err := os.ReadFile(pid.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(content))
}

func TestAlreadyRunning(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(pid.Path(dir), []byte(strconv.Itoa(cmd.Process.Pid)), 0o600))

	err := pid.Write(dir)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}
