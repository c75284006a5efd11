// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package superseding

import (
	"errors"
	"fmt"
)

// Sentinel errors for the superseding package.
var (
	// ErrValidation indicates a precondition failure reported before any
	// mutation. Safe to retry after fixing the input.
	ErrValidation = errors.New("validation failed")

	// ErrProtectedTopic indicates a supersession attempt on a topic that
	// requires manual approval.
	ErrProtectedTopic = errors.New("topic is protected")

	// ErrNotPermitted indicates the command holds neither primary nor
	// secondary ownership of the topic.
	ErrNotPermitted = errors.New("command lacks ownership of topic")

	// ErrStorage indicates an I/O failure mid-execute. Completed steps
	// are not auto-unwound; see StorageError.Step for recovery.
	ErrStorage = errors.New("storage failure")
)

// ValidationError is a retryable pre-mutation failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Reason }

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }

// ProtectedTopicError names the protected topic.
type ProtectedTopicError struct {
	Topic string
}

func (e *ProtectedTopicError) Error() string {
	return fmt.Sprintf("topic %q is protected and requires manual approval", e.Topic)
}

// Unwrap allows errors.Is(err, ErrProtectedTopic).
func (e *ProtectedTopicError) Unwrap() error { return ErrProtectedTopic }

// NotPermittedError names the command and topic.
type NotPermittedError struct {
	Command string
	Topic   string
}

func (e *NotPermittedError) Error() string {
	return fmt.Sprintf("command %q holds neither primary nor secondary ownership of %q",
		e.Command, e.Topic)
}

// Unwrap allows errors.Is(err, ErrNotPermitted).
func (e *NotPermittedError) Unwrap() error { return ErrNotPermitted }

// StorageError reports which execute step failed. Steps before it have
// completed and are left in place: the recommended recovery is to treat
// the event id as abandoned, remove the partial archive directory, and
// retry the execute from scratch.
type StorageError struct {
	Step string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure at step %q: %v", e.Step, e.Err)
}

// Unwrap returns the underlying error; errors.Is(err, ErrStorage) also
// holds.
func (e *StorageError) Unwrap() error { return e.Err }

// Is reports membership of the storage failure class.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }
