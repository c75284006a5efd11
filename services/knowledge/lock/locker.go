// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import "os"

// fileLocker abstracts platform-specific advisory file locking.
//
// Unix uses syscall.Flock, Windows uses LockFileEx. Locks are released by
// the OS when the holding process exits, so a crashed writer never leaves
// the document set permanently locked.
type fileLocker interface {
	// TryLock attempts a non-blocking exclusive lock on the file.
	// Returns ErrWouldBlock if another process holds it.
	TryLock(f *os.File) error

	// Unlock releases the lock. Safe to call on an unlocked file.
	Unlock(f *os.File) error
}

// IsProcessAlive reports whether a process with the given PID exists.
//
// Used only for diagnostics: advisory locks die with their process, so a
// dead holder can never actually block acquisition, but its stale info
// sidecar should not be reported as the current holder.
func IsProcessAlive(pid int) bool {
	return isProcessAlive(pid)
}
