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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/archive"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/audit"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/consult"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/lock"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/registry"
)

var fixedNow = time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	dir         string
	registry    *registry.Store
	audit       *audit.Store
	archive     *archive.Store
	coordinator *Coordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	docLock, err := lock.New(lock.Config{
		LockPath:       filepath.Join(dir, ".knowledge.lock"),
		AcquireTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { docLock.Close() })

	env := &testEnv{
		dir:      dir,
		registry: registry.NewStore(filepath.Join(dir, "registry.yaml"), docLock, nil),
		audit:    audit.NewStore(filepath.Join(dir, "audit.yaml"), nil),
		archive:  archive.NewStore(filepath.Join(dir, "archive"), nil),
	}
	env.coordinator = NewCoordinator(Config{
		Registry: env.registry,
		Audit:    env.audit,
		Archive:  env.archive,
		Lock:     docLock,
		Now:      func() time.Time { return fixedNow },
	})
	return env
}

func (e *testEnv) seed(t *testing.T, fn func(*registry.Document)) {
	t.Helper()
	require.NoError(t, e.registry.Mutate(context.Background(), "seed", func(doc *registry.Document) error {
		fn(doc)
		return nil
	}))
}

func (e *testEnv) writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// seedTechnicalHealth registers the stale technical-health topic owned by
// health-analyzer, pointing at the given v1 authority.
func (e *testEnv) seedTechnicalHealth(t *testing.T, v1 string) {
	e.seed(t, func(doc *registry.Document) {
		topic := doc.EnsureTopic("technical-health")
		topic.CurrentAuthority = v1
		topic.OwnerCommand = "health-analyzer"
		topic.LastUpdated = "2025-02-10"
		topic.FreshnessThresholdDays = 30
		topic.RelatedFiles = []string{v1}
		doc.EnsureOwnership("health-analyzer").PrimaryTopics = []string{"technical-health"}
	})
}

func TestTechnicalHealthRefreshScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1Content := []byte("# Technical Health v1\n\nstale findings\n")
	v1 := env.writeFile(t, "technical-health-v1.md", v1Content)
	env.seedTechnicalHealth(t, v1)

	consultant := consult.NewConsultant(env.registry,
		consult.Config{Now: func() time.Time { return fixedNow }}, nil)

	// The stale topic tells its owner to refresh and everyone else to
	// coordinate with the owner.
	advice, err := consultant.Consult("health-analyzer", "technical-health", "")
	require.NoError(t, err)
	assert.Equal(t, consult.ActionUpdateExisting, advice.Action)

	advice, err = consultant.Consult("risk-analyzer", "technical-health", "")
	require.NoError(t, err)
	assert.Equal(t, consult.ActionCoordinate, advice.Action)
	assert.Equal(t, "health-analyzer", advice.OwnershipStatus.PrimaryOwner)

	// The owner produces v2 and supersedes v1.
	v2 := env.writeFile(t, "technical-health-v2.md", []byte("# Technical Health v2\n\nfresh findings\n"))
	result, err := env.coordinator.Execute(ctx, ExecuteRequest{
		Command:          "health-analyzer",
		Topic:            "technical-health",
		NewAuthorityPath: v2,
		SupersededFiles:  []string{v1},
		Reason:           "quarterly refresh",
		Type:             "refresh",
	})
	require.NoError(t, err)
	assert.Equal(t, "technical-health-20250331-090000", result.EventID)

	// v1 is gone from its original path but byte-identical in the archive.
	_, err = os.Stat(v1)
	assert.True(t, os.IsNotExist(err), "superseded file must be removed")
	require.Len(t, result.ArchivedFiles, 1)
	archived, err := os.ReadFile(result.ArchivedFiles[0].ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, v1Content, archived)

	// The archive path encodes date, command, topic, and event id.
	assert.Equal(t,
		filepath.Join(env.dir, "archive", "2025-03-31", "health-analyzer",
			"technical-health", result.EventID),
		result.ArchiveDir)

	// The registry now points at v2.
	doc, err := env.registry.Load()
	require.NoError(t, err)
	topic := doc.Topic("technical-health")
	require.NotNil(t, topic)
	assert.Equal(t, v2, topic.CurrentAuthority)
	assert.Equal(t, "2025-03-31", topic.LastUpdated)
	assert.NotContains(t, topic.RelatedFiles, v1)
	assert.Contains(t, topic.ArchivedFiles, result.ArchivedFiles[0].ArchivePath)

	// One completed audit event records the whole supersession.
	ev, err := env.audit.EventByID(result.EventID)
	require.NoError(t, err)
	assert.Equal(t, audit.EventCompleted, ev.EventType)
	assert.Equal(t, "health-analyzer", ev.InitiatedBy)
	assert.Equal(t, []string{v2}, ev.SupersedingFiles)

	// The metadata sidecar documents how to undo this event.
	meta, err := env.archive.ReadMetadata(result.ArchiveDir)
	require.NoError(t, err)
	assert.Equal(t, result.EventID, meta.EventID)
	assert.Equal(t, "knowledge superseding rollback "+result.EventID, meta.RollbackCommand)

	// The refreshed topic is fresh again for its owner.
	advice, err = consultant.Consult("health-analyzer", "technical-health", "")
	require.NoError(t, err)
	assert.Equal(t, consult.ActionConsiderNecessity, advice.Action)
}

func TestRollbackRestoresAndRepeats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1Content := []byte("original authoritative content")
	v1 := env.writeFile(t, "v1.md", v1Content)
	env.seedTechnicalHealth(t, v1)
	v2 := env.writeFile(t, "v2.md", []byte("replacement content"))

	result, err := env.coordinator.Execute(ctx, ExecuteRequest{
		Command:          "health-analyzer",
		Topic:            "technical-health",
		NewAuthorityPath: v2,
		SupersededFiles:  []string{v1},
		Reason:           "refresh",
		Type:             "refresh",
	})
	require.NoError(t, err)

	first, err := env.coordinator.Rollback(ctx, result.EventID)
	require.NoError(t, err)
	assert.Equal(t, result.EventID, first.RollbackOf)
	require.Equal(t, []string{v1}, first.RestoredFiles)

	restored, err := os.ReadFile(v1)
	require.NoError(t, err)
	assert.Equal(t, v1Content, restored, "restored file must be byte-identical")

	// Rolling back the same event again succeeds and appends a second,
	// distinct rollback event.
	second, err := env.coordinator.Rollback(ctx, result.EventID)
	require.NoError(t, err)
	assert.NotEqual(t, first.EventID, second.EventID)
	assert.Equal(t, result.EventID, second.RollbackOf)

	restored, err = os.ReadFile(v1)
	require.NoError(t, err)
	assert.Equal(t, v1Content, restored)

	// The completed event is never removed; the log now holds all three.
	log, err := env.audit.Load()
	require.NoError(t, err)
	require.Len(t, log.SupersedingEvents, 3)
	assert.Equal(t, audit.EventCompleted, log.SupersedingEvents[0].EventType)
	assert.Equal(t, audit.EventRollbackCompleted, log.SupersedingEvents[1].EventType)
	assert.Equal(t, audit.EventRollbackCompleted, log.SupersedingEvents[2].EventType)
}

func TestRollbackRequiresCompletedEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedTechnicalHealth(t, filepath.Join(env.dir, "v1.md"))

	receipt, err := env.coordinator.DeclareIntent(ctx, "health-analyzer", "technical-health",
		[]string{"v1.md"}, "planned refresh")
	require.NoError(t, err)

	_, err = env.coordinator.Rollback(ctx, receipt.EventID)
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.coordinator.Rollback(ctx, "no-such-event")
	require.ErrorIs(t, err, audit.ErrEventNotFound)
}

func TestDeclareIntentTouchesNoFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.writeFile(t, "v1.md", []byte("content"))
	env.seedTechnicalHealth(t, v1)

	receipt, err := env.coordinator.DeclareIntent(ctx, "health-analyzer", "technical-health",
		[]string{v1}, "refresh planned for next run")
	require.NoError(t, err)
	assert.Equal(t, "technical-health-20250331-090000", receipt.EventID)

	// Declaring intent archives nothing and leaves the registry alone.
	_, err = os.Stat(v1)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.dir, "archive"))
	assert.True(t, os.IsNotExist(err))

	doc, err := env.registry.Load()
	require.NoError(t, err)
	assert.Equal(t, v1, doc.Topic("technical-health").CurrentAuthority)

	ev, err := env.audit.EventByID(receipt.EventID)
	require.NoError(t, err)
	assert.Equal(t, audit.EventIntent, ev.EventType)
}

func TestCompleteFromIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.writeFile(t, "v1.md", []byte("old"))
	env.seedTechnicalHealth(t, v1)

	receipt, err := env.coordinator.DeclareIntent(ctx, "health-analyzer", "technical-health",
		[]string{v1}, "async refresh")
	require.NoError(t, err)

	v2 := env.writeFile(t, "v2.md", []byte("new"))
	result, err := env.coordinator.CompleteFromIntent(ctx, receipt.EventID, v2)
	require.NoError(t, err)
	assert.Equal(t, receipt.EventID, result.IntentEventID)
	assert.NotEqual(t, receipt.EventID, result.EventID)

	ev, err := env.audit.EventByID(result.EventID)
	require.NoError(t, err)
	assert.Equal(t, audit.EventCompleted, ev.EventType)
	assert.Equal(t, receipt.EventID, ev.IntentEventID)
	assert.Equal(t, "completed_from_intent", ev.SupersessionType)
}

func TestCompleteFromIntentRejectsNonIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.writeFile(t, "v1.md", []byte("old"))
	env.seedTechnicalHealth(t, v1)
	v2 := env.writeFile(t, "v2.md", []byte("new"))

	result, err := env.coordinator.Execute(ctx, ExecuteRequest{
		Command:          "health-analyzer",
		Topic:            "technical-health",
		NewAuthorityPath: v2,
		SupersededFiles:  []string{v1},
		Reason:           "refresh",
	})
	require.NoError(t, err)

	_, err = env.coordinator.CompleteFromIntent(ctx, result.EventID, v2)
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.coordinator.CompleteFromIntent(ctx, "missing-id", v2)
	require.ErrorIs(t, err, audit.ErrEventNotFound)
}

func TestExecutePolicyEnforcement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.writeFile(t, "v1.md", []byte("old"))
	v2 := env.writeFile(t, "v2.md", []byte("new"))
	env.seed(t, func(doc *registry.Document) {
		doc.EnsureTopic("compliance-baseline").CurrentAuthority = v1
		doc.EnsureOwnership("compliance-checker").PrimaryTopics = []string{"compliance-baseline"}
		doc.SupersedingPolicies.ProtectionRules.ProtectedTopics = []string{"compliance-baseline"}
	})

	// Protection beats ownership: even the owner cannot supersede.
	_, err := env.coordinator.Execute(ctx, ExecuteRequest{
		Command:          "compliance-checker",
		Topic:            "compliance-baseline",
		NewAuthorityPath: v2,
		SupersededFiles:  []string{v1},
	})
	require.ErrorIs(t, err, ErrProtectedTopic)

	env.seed(t, func(doc *registry.Document) {
		doc.SupersedingPolicies.ProtectionRules.ProtectedTopics = nil
	})

	// Without any ownership stake the command is not permitted.
	_, err = env.coordinator.Execute(ctx, ExecuteRequest{
		Command:          "bystander-command",
		Topic:            "compliance-baseline",
		NewAuthorityPath: v2,
		SupersededFiles:  []string{v1},
	})
	require.ErrorIs(t, err, ErrNotPermitted)

	// DeclareIntent enforces the same policy.
	_, err = env.coordinator.DeclareIntent(ctx, "bystander-command", "compliance-baseline",
		[]string{v1}, "")
	require.ErrorIs(t, err, ErrNotPermitted)
}

func TestExecuteValidatesBeforeMutating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v1 := env.writeFile(t, "v1.md", []byte("old"))
	env.seedTechnicalHealth(t, v1)

	// Missing new authority.
	_, err := env.coordinator.Execute(ctx, ExecuteRequest{
		Command:          "health-analyzer",
		Topic:            "technical-health",
		NewAuthorityPath: filepath.Join(env.dir, "does-not-exist.md"),
		SupersededFiles:  []string{v1},
	})
	require.ErrorIs(t, err, ErrValidation)

	// Missing superseded file.
	v2 := env.writeFile(t, "v2.md", []byte("new"))
	_, err = env.coordinator.Execute(ctx, ExecuteRequest{
		Command:          "health-analyzer",
		Topic:            "technical-health",
		NewAuthorityPath: v2,
		SupersededFiles:  []string{v1, filepath.Join(env.dir, "ghost.md")},
	})
	require.ErrorIs(t, err, ErrValidation)

	// Nothing was touched by either failed attempt.
	_, statErr := os.Stat(v1)
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(env.dir, "archive"))
	assert.True(t, os.IsNotExist(statErr))

	doc, err := env.registry.Load()
	require.NoError(t, err)
	assert.Equal(t, v1, doc.Topic("technical-health").CurrentAuthority)

	log, err := env.audit.Load()
	require.NoError(t, err)
	assert.Empty(t, log.SupersedingEvents)
}

func TestExecuteRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ExecuteRequest
	}{
		{"missing command", ExecuteRequest{Topic: "t", NewAuthorityPath: "p", SupersededFiles: []string{"f"}}},
		{"missing topic", ExecuteRequest{Command: "c", NewAuthorityPath: "p", SupersededFiles: []string{"f"}}},
		{"missing authority", ExecuteRequest{Command: "c", Topic: "t", SupersededFiles: []string{"f"}}},
		{"no superseded files", ExecuteRequest{Command: "c", Topic: "t", NewAuthorityPath: "p"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.coordinator.Execute(ctx, tc.req)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestExecuteMultipleSupersededFiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.writeFile(t, "partial-a.md", []byte("fragment a"))
	b := env.writeFile(t, "partial-b.md", []byte("fragment b"))
	env.seed(t, func(doc *registry.Document) {
		topic := doc.EnsureTopic("technical-health")
		topic.RelatedFiles = []string{a, b}
		doc.EnsureOwnership("health-analyzer").PrimaryTopics = []string{"technical-health"}
	})
	merged := env.writeFile(t, "merged.md", []byte("fragment a + fragment b"))

	result, err := env.coordinator.Execute(ctx, ExecuteRequest{
		Command:          "health-analyzer",
		Topic:            "technical-health",
		NewAuthorityPath: merged,
		SupersededFiles:  []string{a, b},
		Reason:           "consolidation",
		Type:             "consolidation",
	})
	require.NoError(t, err)
	require.Len(t, result.ArchivedFiles, 2)

	for _, f := range []string{a, b} {
		_, err := os.Stat(f)
		assert.True(t, os.IsNotExist(err), "%s should be archived away", f)
	}
	doc, err := env.registry.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Topic("technical-health").RelatedFiles)
	assert.Len(t, doc.Topic("technical-health").ArchivedFiles, 2)
}
