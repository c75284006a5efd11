// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/internal/atomicfile"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/lock"
)

// Store persists the registry document as line-diffable YAML.
//
// # Description
//
// Reads never take the document lock and may run unboundedly in parallel;
// the document is replaced atomically (temp file + rename) so a reader
// always sees a complete document. Writers go through Mutate, which holds
// the exclusive document lock for the whole read-validate-write span.
//
// # Thread Safety
//
// Safe for concurrent use. Cross-process safety comes from the document
// lock plus atomic replacement.
type Store struct {
	path   string
	lock   *lock.DocumentLock
	logger *slog.Logger
}

// NewStore creates a registry store over the given file path. The lock is
// shared with every other mutator of the knowledge document set.
func NewStore(path string, docLock *lock.DocumentLock, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		lock:   docLock,
		logger: logger.With("component", "registry.Store"),
	}
}

// Path returns the registry document path.
func (s *Store) Path() string { return s.path }

// Load reads the registry document. A missing file yields an empty
// document; an unreadable or unparseable one is an error the caller
// should treat as fatal (the registry is the root of all coordination
// state, nothing can proceed without it).
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("reading registry %s: %w", s.path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing registry %s: %w", s.path, err)
	}
	doc.normalize()
	return &doc, nil
}

// Save writes the document atomically. Callers must hold the document
// lock; Save itself does not acquire it.
func (s *Store) Save(doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing registry %s: %w", s.path, err)
	}
	return nil
}

// Mutate applies fn to the current document under the exclusive document
// lock and persists the result.
//
// # Description
//
// The document is re-read inside the critical section, so fn always sees
// the latest committed state and can re-validate preconditions before the
// write. Returning an error from fn aborts the mutation with nothing
// written.
//
// # Inputs
//
//   - ctx: Bounds lock acquisition.
//   - reason: Recorded in the lock info sidecar.
//   - fn: Mutation applied to the freshly loaded document.
//
// # Outputs
//
//   - error: lock.ErrBusy when the lock cannot be acquired in time, fn's
//     error verbatim, or a storage error from the atomic write.
func (s *Store) Mutate(ctx context.Context, reason string, fn func(*Document) error) error {
	guard, err := s.lock.Acquire(ctx, reason)
	if err != nil {
		return err
	}
	defer guard.Release()

	doc, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.Save(doc)
}
