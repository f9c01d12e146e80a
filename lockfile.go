package main

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/tonimelisma/cloudexplorer/internal/config"
)

const (
	lockFilePermissions = 0o644
	lockDirPermissions  = 0o755
)

// watchLockPath returns the lock file guarding a push --watch of localDir
// into account.
func watchLockPath(account, localDir string) (string, error) {
	abs, err := filepath.Abs(localDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", localDir, err)
	}

	dataDir := config.DefaultDataDir()
	if dataDir == "" {
		return "", fmt.Errorf("cannot determine data directory")
	}

	h := fnv.New64a()
	h.Write([]byte(abs))

	return filepath.Join(dataDir, "watch", fmt.Sprintf("%s-%x.lock", account, h.Sum64())), nil
}

// acquireLock writes the current PID to path under an exclusive flock. The
// returned cleanup removes the file and releases the lock.
func acquireLock(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, fmt.Errorf("lock file path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), lockDirPermissions); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePermissions)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		holder := ""
		if pid, readErr := readLockPID(path); readErr == nil {
			holder = fmt.Sprintf(" by PID %d", pid)
		}

		return nil, fmt.Errorf("folder is already being watched%s (could not lock %s)", holder, path)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

// readLockPID returns the PID recorded in a lock file.
func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}
