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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "audit.yaml"), nil)
}

func testEvent(id string, typ EventType) SupersedingEvent {
	return SupersedingEvent{
		EventID:     id,
		EventType:   typ,
		Topic:       "technical-health",
		InitiatedBy: "health-analyzer",
		Reason:      "refresh",
		Timestamp:   time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestLoadMissingReturnsEmptyLog(t *testing.T) {
	store := newTestStore(t)

	doc, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.SupersedingEvents)
	assert.Zero(t, doc.LifecycleMetrics.TotalSupersedingEvents)
}

func TestAppendAccumulatesMetrics(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Append(testEvent("technical-health-20250315-120000", EventIntent)))
	require.NoError(t, store.Append(testEvent("technical-health-20250315-120000-2", EventCompleted)))
	require.NoError(t, store.Append(testEvent("technical-health-20250315-120000-3", EventRollbackCompleted)))

	doc, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, doc.SupersedingEvents, 3)
	assert.Equal(t, 3, doc.LifecycleMetrics.TotalSupersedingEvents)
	assert.Equal(t, 1, doc.LifecycleMetrics.SuccessfulMigrations,
		"only completed events count as migrations")

	events, err := store.Events()
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventIntent, events[0].EventType, "append order preserved")
}

func TestEventByID(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Append(testEvent("technical-health-20250315-120000", EventCompleted)))

	ev, err := store.EventByID("technical-health-20250315-120000")
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, ev.EventType)

	_, err = store.EventByID("no-such-event")
	require.ErrorIs(t, err, ErrEventNotFound)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "no-such-event", notFound.EventID)
}

func TestEventsForTopic(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Append(testEvent("technical-health-20250315-120000", EventCompleted)))
	other := testEvent("api-design-20250315-120000", EventCompleted)
	other.Topic = "api-design"
	require.NoError(t, store.Append(other))

	events, err := store.EventsForTopic("technical-health")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "technical-health-20250315-120000", events[0].EventID)
}

func TestNewEventIDUniquifies(t *testing.T) {
	store := newTestStore(t)
	ts := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

	id, err := store.NewEventID("technical-health", ts)
	require.NoError(t, err)
	assert.Equal(t, "technical-health-20250315-120000", id)

	require.NoError(t, store.Append(testEvent(id, EventIntent)))

	id2, err := store.NewEventID("technical-health", ts)
	require.NoError(t, err)
	assert.Equal(t, "technical-health-20250315-120000-2", id2)
}

func TestEventIDFor(t *testing.T) {
	ts := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	taken := map[string]bool{}

	tests := []struct {
		name string
		pre  []string
		want string
	}{
		{name: "no collision", want: "technical-health-20250315-120000"},
		{name: "first collision", pre: []string{"technical-health-20250315-120000"},
			want: "technical-health-20250315-120000-2"},
		{name: "second collision", pre: []string{
			"technical-health-20250315-120000",
			"technical-health-20250315-120000-2"},
			want: "technical-health-20250315-120000-3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clear(taken)
			for _, id := range tc.pre {
				taken[id] = true
			}
			assert.Equal(t, tc.want, EventIDFor("technical-health", ts, taken))
		})
	}
}
