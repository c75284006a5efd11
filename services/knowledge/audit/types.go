// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists the append-only supersession history. Events are
// write-once, read-many: nothing in the system ever mutates or deletes a
// recorded event, and rollback appends a new event referencing the
// original rather than rewriting it.
package audit

import (
	"fmt"
	"time"
)

// EventType classifies a supersession lifecycle transition.
type EventType string

const (
	// EventIntent records a declared, not-yet-executed supersession.
	EventIntent EventType = "intent"

	// EventCompleted records an executed supersession: files archived,
	// registry repointed.
	EventCompleted EventType = "completed"

	// EventRollbackCompleted records a restore of a completed event's
	// archived files. The completed event stays in the log.
	EventRollbackCompleted EventType = "rollback_completed"
)

// ArchiveRecord describes one archived file copy. Created only at execute
// time; the copy is byte-exact before the original is removed.
type ArchiveRecord struct {
	OriginalPath     string    `yaml:"original_path"`
	ArchivePath      string    `yaml:"archive_path"`
	FileSize         int64     `yaml:"file_size"`
	Checksum         string    `yaml:"checksum"`
	ArchiveTimestamp time.Time `yaml:"archive_timestamp"`
}

// SupersedingEvent is one immutable entry in the supersession history.
type SupersedingEvent struct {
	EventID     string    `yaml:"event_id"`
	EventType   EventType `yaml:"event_type"`
	Topic       string    `yaml:"topic"`
	InitiatedBy string    `yaml:"initiated_by"`
	Reason      string    `yaml:"reason"`
	Timestamp   time.Time `yaml:"timestamp"`

	SupersededFiles  []string        `yaml:"superseded_files,omitempty"`
	SupersedingFiles []string        `yaml:"superseding_files,omitempty"`
	ArchivedFiles    []ArchiveRecord `yaml:"archived_files,omitempty"`

	ValidationStatus string `yaml:"validation_status,omitempty"`

	// SupersessionType carries the caller-declared kind of supersession
	// (e.g. refresh, consolidation) on completed events.
	SupersessionType string `yaml:"supersession_type,omitempty"`

	// IntentEventID links a completed event back to its declared intent
	// when the two-phase path was used.
	IntentEventID string `yaml:"intent_event_id,omitempty"`

	// RollbackOf references the completed event a rollback_completed
	// event restored.
	RollbackOf string `yaml:"rollback_of,omitempty"`
}

// LifecycleMetrics accumulates counters persisted with the log.
type LifecycleMetrics struct {
	TotalSupersedingEvents int `yaml:"total_superseding_events"`
	SuccessfulMigrations   int `yaml:"successful_migrations"`
}

// Document is the audit log as persisted in audit.yaml.
type Document struct {
	SupersedingEvents []SupersedingEvent `yaml:"superseding_events"`
	LifecycleMetrics  LifecycleMetrics   `yaml:"lifecycle_metrics"`
}

// EventIDFor derives an event id from topic and timestamp, the natural key
// for one supersession. Second-level resolution can collide when the same
// topic is superseded twice within a second; takenIDs disambiguates with a
// numeric suffix.
func EventIDFor(topic string, ts time.Time, takenIDs map[string]bool) string {
	base := fmt.Sprintf("%s-%s", topic, ts.Format("20060102-150405"))
	if !takenIDs[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !takenIDs[candidate] {
			return candidate
		}
	}
}
