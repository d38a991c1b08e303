//go:build !windows
// +build !windows

package instance

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// AcquireLock acquires an exclusive advisory lock (flock) to prevent
// multiple marcus instances from starting against the same state directory.
func (m *InstanceManager) AcquireLock() error {
	lockPath := m.pidFilePath + ".lock"

	fd, err := unix.Open(lockPath, unix.O_CREAT|unix.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to acquire lock (another instance may be starting): %w", err)
	}

	m.lockHandle = uintptr(fd)
	m.acquiredLock = true

	pidStr := fmt.Sprintf("%d", os.Getpid())
	if err := unix.Ftruncate(fd, 0); err == nil {
		unix.Pwrite(fd, []byte(pidStr), 0)
	}

	return nil
}

// ReleaseLock releases the exclusive lock and removes the lock file.
func (m *InstanceManager) ReleaseLock() error {
	if !m.acquiredLock {
		return nil
	}

	if m.lockHandle != 0 {
		fd := int(m.lockHandle)
		if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
			fmt.Printf("Warning: Failed to unlock lock file: %v\n", err)
		}
		if err := unix.Close(fd); err != nil {
			fmt.Printf("Warning: Failed to close lock fd: %v\n", err)
		}
		m.lockHandle = 0
	}

	lockPath := m.pidFilePath + ".lock"
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: Failed to remove lock file: %v\n", err)
	}

	m.acquiredLock = false
	return nil
}
