// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/internal/atomicfile"
)

// ErrEventNotFound indicates an unknown event id.
var ErrEventNotFound = errors.New("superseding event not found")

// NotFoundError reports which event id was missing.
type NotFoundError struct {
	EventID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("superseding event %q not found", e.EventID)
}

// Unwrap allows errors.Is(err, ErrEventNotFound).
func (e *NotFoundError) Unwrap() error { return ErrEventNotFound }

// Store persists the audit log document.
//
// # Description
//
// The log is append-only: Append re-reads the document, adds one event,
// bumps lifecycle metrics, and atomically replaces the file. Append does
// not take the document lock itself: every caller (ownership manager,
// coordinator) already holds it for the surrounding registry mutation,
// and the log must commit inside that same critical section.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates an audit store over the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger.With("component", "audit.Store"),
	}
}

// Path returns the audit document path.
func (s *Store) Path() string { return s.path }

// Load reads the audit document. A missing file yields an empty log.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Document{}, nil
		}
		return nil, fmt.Errorf("reading audit log %s: %w", s.path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing audit log %s: %w", s.path, err)
	}
	return &doc, nil
}

// Append records one event and updates lifecycle metrics. Callers must
// hold the document lock.
func (s *Store) Append(event SupersedingEvent) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}

	doc.SupersedingEvents = append(doc.SupersedingEvents, event)
	doc.LifecycleMetrics.TotalSupersedingEvents++
	if event.EventType == EventCompleted {
		doc.LifecycleMetrics.SuccessfulMigrations++
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding audit log: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing audit log %s: %w", s.path, err)
	}

	s.logger.Info("appended superseding event",
		"event_id", event.EventID,
		"event_type", string(event.EventType),
		"topic", event.Topic,
		"initiated_by", event.InitiatedBy)
	return nil
}

// Events returns every recorded event in append order.
func (s *Store) Events() ([]SupersedingEvent, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return doc.SupersedingEvents, nil
}

// EventByID returns the event with the given id, or a *NotFoundError.
func (s *Store) EventByID(id string) (*SupersedingEvent, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	for i := range doc.SupersedingEvents {
		if doc.SupersedingEvents[i].EventID == id {
			ev := doc.SupersedingEvents[i]
			return &ev, nil
		}
	}
	return nil, &NotFoundError{EventID: id}
}

// EventsForTopic returns the topic's events in append order.
func (s *Store) EventsForTopic(topic string) ([]SupersedingEvent, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	var events []SupersedingEvent
	for _, ev := range doc.SupersedingEvents {
		if ev.Topic == topic {
			events = append(events, ev)
		}
	}
	return events, nil
}

// NewEventID derives a unique event id for the topic at the given time,
// consulting the current log for collisions.
func (s *Store) NewEventID(topic string, ts time.Time) (string, error) {
	doc, err := s.Load()
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(doc.SupersedingEvents))
	for _, ev := range doc.SupersedingEvents {
		taken[ev.EventID] = true
	}
	return EventIDFor(topic, ts, taken), nil
}
