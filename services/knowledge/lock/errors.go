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

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lock package.
var (
	// ErrBusy indicates the document lock could not be acquired before the
	// configured timeout. Holders are short-lived mutations, so callers
	// should fail fast and retry rather than block.
	ErrBusy = errors.New("document lock busy")

	// ErrWouldBlock indicates a single non-blocking acquisition attempt
	// found the lock held by another process.
	ErrWouldBlock = errors.New("lock held by another process")

	// ErrNotHeld indicates a release was attempted on a lock that is not
	// currently held by this process.
	ErrNotHeld = errors.New("lock not held")
)

// BusyError reports a failed acquisition along with whatever is known
// about the current holder.
type BusyError struct {
	// Holder describes the current lock holder, if its info sidecar could
	// be read. May be nil.
	Holder *Info
}

// Error implements the error interface.
func (e *BusyError) Error() string {
	if e.Holder == nil {
		return "document lock busy"
	}
	return fmt.Sprintf("document lock busy: held by pid %d (session %s) since %s: %s",
		e.Holder.PID, e.Holder.SessionID,
		e.Holder.AcquiredAt.Format("2006-01-02T15:04:05Z07:00"),
		e.Holder.Reason)
}

// Unwrap allows errors.Is(err, ErrBusy).
func (e *BusyError) Unwrap() error { return ErrBusy }
