//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// IsProcessRunning checks if a process with the given PID is running
// and verifies it's actually the marcus binary (not a PID reuse).
func IsProcessRunning(pid int) (bool, error) {
	if err := unix.Kill(pid, 0); err != nil {
		if err == unix.ESRCH {
			return false, nil
		}
		if err == unix.EPERM {
			// Process exists but we can't signal it; still running.
			return true, nil
		}
		return false, fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	name, err := GetProcessName(pid)
	if err != nil {
		// Process exists but name lookup failed (e.g. already exited);
		// treat presence from the kill probe as authoritative.
		return true, nil
	}

	return isMarcusBinary(name), nil
}

// GetProcessName retrieves the executable name for a given PID by reading
// /proc/<pid>/comm, falling back to /proc/<pid>/exe when unavailable.
func GetProcessName(pid int) (string, error) {
	commPath := filepath.Join("/proc", strconv.Itoa(pid), "comm")
	if data, err := os.ReadFile(commPath); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	exePath, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "exe"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve process name for pid %d: %w", pid, err)
	}
	return filepath.Base(exePath), nil
}

// GetProcessStartTime retrieves the start time of a process from the
// modification time of its /proc/<pid> directory.
func GetProcessStartTime(pid int) (time.Time, error) {
	info, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat process %d: %w", pid, err)
	}
	return info.ModTime(), nil
}

// KillProcess forcefully terminates a process.
func KillProcess(pid int) error {
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process %d: %w", pid, err)
	}
	return nil
}
