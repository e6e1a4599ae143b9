package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"dashjoin/internal/config"
)

// ErrNotRunning is returned when no session holds the state directory lock.
var ErrNotRunning = errors.New("no dashjoin session is running")

func writePID(path string) error {
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ReadPID returns the pid recorded by the running session.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s is malformed", path)
	}
	return pid, nil
}

// LockHeld reports whether a session currently holds the lock at path.
func LockHeld(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// SignalStop asks the running session to shut down with SIGTERM and returns
// its pid. The caller does not wait for the session to exit.
func SignalStop(cfg *config.Config) (int, error) {
	held, err := LockHeld(cfg.LockPath())
	if err != nil {
		return 0, err
	}
	if !held {
		return 0, ErrNotRunning
	}
	pid, err := ReadPID(cfg.PIDPath())
	if err != nil {
		return 0, err
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return pid, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return pid, nil
}
