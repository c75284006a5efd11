// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package superseding is the only component that mutates the registry,
// ownership index, audit log, and archive store together. A supersession
// moves through none → intent_declared → completed, with an orthogonal
// completed → rolled_back transition that appends a new event and never
// removes the completed one.
package superseding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/archive"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/audit"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/lock"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/registry"
)

// Coordinator executes supersessions: archive the superseded files,
// repoint the registry, and append exactly one audit event, all under the
// exclusive document lock.
//
// # Thread Safety
//
// Safe for concurrent use. Mutations on any topic serialize through the
// document lock; the archive tree itself never contends because event ids
// are globally unique.
type Coordinator struct {
	registry *registry.Store
	audit    *audit.Store
	archive  *archive.Store
	lock     *lock.DocumentLock
	logger   *slog.Logger
	now      func() time.Time
}

// Config wires a Coordinator's collaborators.
type Config struct {
	Registry *registry.Store
	Audit    *audit.Store
	Archive  *archive.Store
	Lock     *lock.DocumentLock

	// Now supplies the current time. Defaults to time.Now; fixed in tests.
	Now func() time.Time

	Logger *slog.Logger
}

// NewCoordinator creates a superseding coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		registry: cfg.Registry,
		audit:    cfg.Audit,
		archive:  cfg.Archive,
		lock:     cfg.Lock,
		logger:   cfg.Logger.With("component", "superseding.Coordinator"),
		now:      cfg.Now,
	}
}

// IntentReceipt is the result of DeclareIntent.
type IntentReceipt struct {
	EventID         string   `json:"event_id"`
	Topic           string   `json:"topic"`
	Command         string   `json:"command"`
	SupersededFiles []string `json:"superseded_files"`
}

// DeclareIntent records that a supersession will happen once new
// authoritative output exists. Validation only, no file I/O: the intent
// event is the write-ahead record the two-phase path completes later.
//
// # Outputs
//
//   - *IntentReceipt: Carries the event id to pass to CompleteFromIntent.
//   - error: *ProtectedTopicError, *NotPermittedError, lock.ErrBusy.
func (c *Coordinator) DeclareIntent(ctx context.Context, command, topic string, supersededFiles []string, reason string) (receipt *IntentReceipt, err error) {
	defer func() { recordIntent(ctx, err == nil) }()

	if command == "" || topic == "" {
		return nil, &ValidationError{Reason: "command and topic are required"}
	}

	guard, err := c.lock.Acquire(ctx, fmt.Sprintf("declare superseding intent for %s", topic))
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	doc, err := c.registry.Load()
	if err != nil {
		return nil, err
	}
	if err := c.validatePolicy(doc, command, topic); err != nil {
		return nil, err
	}

	now := c.now()
	eventID, err := c.audit.NewEventID(topic, now)
	if err != nil {
		return nil, err
	}

	event := audit.SupersedingEvent{
		EventID:          eventID,
		EventType:        audit.EventIntent,
		Topic:            topic,
		InitiatedBy:      command,
		Reason:           reason,
		Timestamp:        now,
		SupersededFiles:  slices.Clone(supersededFiles),
		ValidationStatus: "validated",
	}
	if err := c.audit.Append(event); err != nil {
		return nil, &StorageError{Step: "append_audit_event", Err: err}
	}

	c.logger.Info("superseding intent declared",
		"event_id", eventID,
		"topic", topic,
		"command", command)
	return &IntentReceipt{
		EventID:         eventID,
		Topic:           topic,
		Command:         command,
		SupersededFiles: slices.Clone(supersededFiles),
	}, nil
}

// ExecuteRequest describes one supersession execution.
type ExecuteRequest struct {
	Command          string
	Topic            string
	NewAuthorityPath string
	SupersededFiles  []string
	Reason           string

	// Type is the caller-declared kind of supersession (refresh,
	// consolidation, ...), recorded on the completed event.
	Type string

	// IntentEventID links back to a declared intent when executing via
	// CompleteFromIntent.
	IntentEventID string
}

// ExecuteResult is the outcome of a successful Execute.
type ExecuteResult struct {
	EventID       string                `json:"event_id"`
	Topic         string                `json:"topic"`
	NewAuthority  string                `json:"new_authority"`
	ArchiveDir    string                `json:"archive_dir"`
	ArchivedFiles []audit.ArchiveRecord `json:"archived_files"`
	IntentEventID string                `json:"intent_event_id,omitempty"`
}

// Execute performs a supersession as one logical unit.
//
// # Description
//
// Validates everything first (existence of the new authority and every
// superseded file, ownership permission, protection policy); validation
// failures are reported before any mutation and are safely retryable.
// Then, under the document lock: archive directory creation, byte-exact
// copies, original removal, registry update, one completed audit event,
// and the metadata sidecar. A failed step aborts before later steps run
// and reports itself via *StorageError; already-completed steps are not
// auto-unwound, so remove the partial archive directory and retry from
// scratch.
func (c *Coordinator) Execute(ctx context.Context, req ExecuteRequest) (result *ExecuteResult, err error) {
	// Wall clock, not c.now: the duration metric must stay real even
	// when domain timestamps come from an injected clock.
	start := time.Now()
	var bytesArchived int64
	defer func() { recordExecute(ctx, time.Since(start), bytesArchived, err == nil) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	guard, err := c.lock.Acquire(ctx, fmt.Sprintf("supersede %s", req.Topic))
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	doc, err := c.registry.Load()
	if err != nil {
		return nil, err
	}
	if err := c.validatePolicy(doc, req.Command, req.Topic); err != nil {
		return nil, err
	}
	if _, err := os.Stat(req.NewAuthorityPath); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("new authority %q: %v", req.NewAuthorityPath, err)}
	}
	for _, f := range req.SupersededFiles {
		if _, err := os.Stat(f); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("superseded file %q: %v", f, err)}
		}
	}

	now := c.now()
	eventID, err := c.audit.NewEventID(req.Topic, now)
	if err != nil {
		return nil, err
	}
	dir := c.archive.EventDir(now, req.Command, req.Topic, eventID)

	// From here on every failure is a StorageError naming its step;
	// completed steps stay in place.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Step: "create_archive_directory", Err: err}
	}

	records := make([]audit.ArchiveRecord, 0, len(req.SupersededFiles))
	for _, f := range req.SupersededFiles {
		rec, err := c.archive.ArchiveFile(f, dir)
		if err != nil {
			return nil, &StorageError{Step: "archive_files", Err: err}
		}
		records = append(records, rec)
		bytesArchived += rec.FileSize
	}

	// Originals are removed only after every copy succeeded.
	for _, f := range req.SupersededFiles {
		if err := os.Remove(f); err != nil {
			return nil, &StorageError{Step: "remove_originals", Err: err}
		}
	}

	c.applyTopicUpdate(doc, req, records, now)
	if err := c.registry.Save(doc); err != nil {
		return nil, &StorageError{Step: "update_registry", Err: err}
	}

	event := audit.SupersedingEvent{
		EventID:          eventID,
		EventType:        audit.EventCompleted,
		Topic:            req.Topic,
		InitiatedBy:      req.Command,
		Reason:           req.Reason,
		Timestamp:        now,
		SupersededFiles:  slices.Clone(req.SupersededFiles),
		SupersedingFiles: []string{req.NewAuthorityPath},
		ArchivedFiles:    records,
		ValidationStatus: "validated",
		SupersessionType: req.Type,
		IntentEventID:    req.IntentEventID,
	}
	if err := c.audit.Append(event); err != nil {
		return nil, &StorageError{Step: "append_audit_event", Err: err}
	}

	meta := archive.Metadata{
		EventID:              eventID,
		Topic:                req.Topic,
		SupersedingTimestamp: now,
		Reason:               req.Reason,
		NewAuthority:         req.NewAuthorityPath,
		SupersededFiles:      slices.Clone(req.SupersededFiles),
		RollbackCommand:      fmt.Sprintf("knowledge superseding rollback %s", eventID),
	}
	if err := c.archive.WriteMetadata(dir, meta); err != nil {
		return nil, &StorageError{Step: "write_metadata", Err: err}
	}

	c.logger.Info("supersession completed",
		"event_id", eventID,
		"topic", req.Topic,
		"command", req.Command,
		"archived_files", len(records),
		"new_authority", req.NewAuthorityPath)

	return &ExecuteResult{
		EventID:       eventID,
		Topic:         req.Topic,
		NewAuthority:  req.NewAuthorityPath,
		ArchiveDir:    dir,
		ArchivedFiles: records,
		IntentEventID: req.IntentEventID,
	}, nil
}

// CompleteFromIntent executes a previously declared intent, the second
// phase for asynchronously produced content.
//
// # Outputs
//
//   - *ExecuteResult: As for Execute, with IntentEventID set.
//   - error: *audit.NotFoundError on an unknown id, *ValidationError when
//     the event is not an intent, plus everything Execute can return.
func (c *Coordinator) CompleteFromIntent(ctx context.Context, intentEventID, newAuthorityPath string) (*ExecuteResult, error) {
	ev, err := c.audit.EventByID(intentEventID)
	if err != nil {
		return nil, err
	}
	if ev.EventType != audit.EventIntent {
		return nil, &ValidationError{Reason: fmt.Sprintf("event %q is %q, not a declared intent",
			intentEventID, ev.EventType)}
	}

	return c.Execute(ctx, ExecuteRequest{
		Command:          ev.InitiatedBy,
		Topic:            ev.Topic,
		NewAuthorityPath: newAuthorityPath,
		SupersededFiles:  slices.Clone(ev.SupersededFiles),
		Reason:           ev.Reason,
		Type:             "completed_from_intent",
		IntentEventID:    intentEventID,
	})
}

// RollbackResult is the outcome of a successful Rollback.
type RollbackResult struct {
	EventID       string   `json:"event_id"`
	RollbackOf    string   `json:"rollback_of"`
	Topic         string   `json:"topic"`
	RestoredFiles []string `json:"restored_files"`
}

// Rollback restores every archived file of a completed event to its
// original path and appends a rollback_completed event referencing it.
//
// # Description
//
// The completed event is never removed. Rolling back the same event
// again re-copies the same archived content and appends another distinct
// rollback event; callers should check the topic's history before
// repeating.
func (c *Coordinator) Rollback(ctx context.Context, eventID string) (result *RollbackResult, err error) {
	defer func() { recordRollback(ctx, err == nil) }()

	guard, err := c.lock.Acquire(ctx, fmt.Sprintf("rollback %s", eventID))
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	ev, err := c.audit.EventByID(eventID)
	if err != nil {
		return nil, err
	}
	if ev.EventType != audit.EventCompleted {
		return nil, &ValidationError{Reason: fmt.Sprintf("event %q is %q; only completed events can be rolled back",
			eventID, ev.EventType)}
	}

	restored := make([]string, 0, len(ev.ArchivedFiles))
	for _, rec := range ev.ArchivedFiles {
		path, err := c.archive.Restore(rec)
		if err != nil {
			return nil, &StorageError{Step: "restore_files", Err: err}
		}
		restored = append(restored, path)
	}

	now := c.now()
	rollbackID, err := c.audit.NewEventID(ev.Topic, now)
	if err != nil {
		return nil, err
	}
	event := audit.SupersedingEvent{
		EventID:          rollbackID,
		EventType:        audit.EventRollbackCompleted,
		Topic:            ev.Topic,
		InitiatedBy:      ev.InitiatedBy,
		Reason:           fmt.Sprintf("rollback of %s", eventID),
		Timestamp:        now,
		SupersededFiles:  slices.Clone(ev.SupersedingFiles),
		SupersedingFiles: restored,
		ValidationStatus: "validated",
		RollbackOf:       eventID,
	}
	if err := c.audit.Append(event); err != nil {
		return nil, &StorageError{Step: "append_audit_event", Err: err}
	}

	c.logger.Info("supersession rolled back",
		"event_id", rollbackID,
		"rollback_of", eventID,
		"topic", ev.Topic,
		"restored_files", len(restored))

	return &RollbackResult{
		EventID:       rollbackID,
		RollbackOf:    eventID,
		Topic:         ev.Topic,
		RestoredFiles: restored,
	}, nil
}

// validatePolicy checks protection and ownership permission against the
// freshly loaded registry.
func (c *Coordinator) validatePolicy(doc *registry.Document, command, topic string) error {
	if doc.IsProtected(topic) {
		return &ProtectedTopicError{Topic: topic}
	}
	if !doc.HasPermission(command, topic) {
		return &NotPermittedError{Command: command, Topic: topic}
	}
	return nil
}

func validateRequest(req ExecuteRequest) error {
	switch {
	case req.Command == "":
		return &ValidationError{Reason: "command is required"}
	case req.Topic == "":
		return &ValidationError{Reason: "topic is required"}
	case req.NewAuthorityPath == "":
		return &ValidationError{Reason: "new authority path is required"}
	case len(req.SupersededFiles) == 0:
		return &ValidationError{Reason: "at least one superseded file is required"}
	}
	return nil
}

// applyTopicUpdate repoints the topic at its new authority: superseded
// files leave RelatedFiles, the archive copies accumulate in
// ArchivedFiles, and any conflict flags are cleared by the successful
// supersession.
func (c *Coordinator) applyTopicUpdate(doc *registry.Document, req ExecuteRequest, records []audit.ArchiveRecord, now time.Time) {
	t := doc.EnsureTopic(req.Topic)
	t.CurrentAuthority = req.NewAuthorityPath
	t.LastUpdated = now.Format(registry.DateLayout)
	t.RelatedFiles = slices.DeleteFunc(t.RelatedFiles, func(f string) bool {
		return slices.Contains(req.SupersededFiles, f)
	})
	for _, rec := range records {
		t.ArchivedFiles = append(t.ArchivedFiles, rec.ArchivePath)
	}
	t.ConflictsDetected = false
	t.ConflictDetails = nil
	if owner := doc.PrimaryOwner(req.Topic); owner != "" {
		t.OwnerCommand = owner
	}
}
