//go:build !windows

package tokenfile

import (
	"errors"
	"os"
	"syscall"
)

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	// EPERM means the process exists but belongs to someone else
	return err == nil || errors.Is(err, syscall.EPERM)
}
