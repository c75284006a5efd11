// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package lock

import (
	"os"
	"syscall"
)

// unixFileLocker implements fileLocker using flock(2).
//
// Locks are advisory, process-scoped, and released on close or process
// exit. LOCK_NB keeps every attempt non-blocking; the retry loop in
// DocumentLock.Acquire provides the bounded wait.
type unixFileLocker struct{}

func newPlatformLocker() fileLocker { return &unixFileLocker{} }

// TryLock acquires an exclusive lock with LOCK_EX|LOCK_NB.
func (l *unixFileLocker) TryLock(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if err == syscall.EWOULDBLOCK {
			return ErrWouldBlock
		}
		return err
	}
	return nil
}

// Unlock releases the lock with LOCK_UN.
func (l *unixFileLocker) Unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// isProcessAlive checks process existence with kill -0.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user.
	return err == syscall.EPERM
}
