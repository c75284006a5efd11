// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ownership

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ownership package.
var (
	// ErrInvalidCommand indicates a command name outside the known set.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrAlreadyOwned indicates a claim on a topic that already has a
	// primary owner. The claimer should re-consult for fresh guidance.
	ErrAlreadyOwned = errors.New("topic already owned")
)

// InvalidCommandError reports which command name failed validation.
type InvalidCommandError struct {
	Command string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command %q: not in the known command set", e.Command)
}

// Unwrap allows errors.Is(err, ErrInvalidCommand).
func (e *InvalidCommandError) Unwrap() error { return ErrInvalidCommand }

// AlreadyOwnedError reports the current primary owner blocking a claim.
type AlreadyOwnedError struct {
	Topic        string
	CurrentOwner string
}

func (e *AlreadyOwnedError) Error() string {
	return fmt.Sprintf("topic %q already owned by %q", e.Topic, e.CurrentOwner)
}

// Unwrap allows errors.Is(err, ErrAlreadyOwned).
func (e *AlreadyOwnedError) Unwrap() error { return ErrAlreadyOwned }
