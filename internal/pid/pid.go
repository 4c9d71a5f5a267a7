package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/templogger/internal/errors"
)

const (
	pidFile = "templogger.pid"
	dirPerm = 0o755
)

// Path returns the PID file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, pidFile)
}

// Write writes the current process ID to dir/templogger.pid. It fails with
// ErrAlreadyRunning while another live process owns the file; a stale file
// is replaced.
func Write(dir string) error {
	errFactory := errors.New()
	path := Path(dir)

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if content, err := os.ReadFile(path); err == nil {
		// PID file exists, check if the process is running
		if other, err := strconv.Atoi(strings.TrimSpace(string(content))); err == nil && other != os.Getpid() && alive(other) {
			return errFactory.WithData(errors.ErrAlreadyRunning, other)
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove(dir string) error {
	if err := os.Remove(Path(dir)); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
