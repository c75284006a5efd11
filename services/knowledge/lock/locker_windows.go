// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package lock

import (
	"os"

	"golang.org/x/sys/windows"
)

// windowsFileLocker implements fileLocker using LockFileEx.
//
// LOCKFILE_FAIL_IMMEDIATELY keeps every attempt non-blocking, matching the
// flock(2) behavior on Unix.
type windowsFileLocker struct{}

func newPlatformLocker() fileLocker { return &windowsFileLocker{} }

// TryLock acquires an exclusive lock on the first byte of the file.
func (l *windowsFileLocker) TryLock(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return ErrWouldBlock
		}
		return err
	}
	return nil
}

// Unlock releases the lock on the first byte of the file.
func (l *windowsFileLocker) Unlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}

// isProcessAlive checks process existence via OpenProcess.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	windows.CloseHandle(handle)
	return true
}
