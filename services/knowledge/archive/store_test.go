// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDirLayout(t *testing.T) {
	store := NewStore("/state/archive", nil)
	date := time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

	dir := store.EventDir(date, "health-analyzer", "technical-health", "technical-health-20250315-093000")
	assert.Equal(t,
		filepath.Join("/state/archive", "2025-03-15", "health-analyzer",
			"technical-health", "technical-health-20250315-093000"),
		dir)
}

func TestArchiveRoundTripByteIdentity(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "archive"), nil)

	content := []byte("# Technical Health Report v1\n\nlatency p99: 240ms\x00\xff binary tail")
	src := filepath.Join(root, "report-v1.md")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	dir := store.EventDir(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		"health-analyzer", "technical-health", "evt-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	rec, err := store.ArchiveFile(src, dir)
	require.NoError(t, err)
	assert.Equal(t, src, rec.OriginalPath)
	assert.Equal(t, int64(len(content)), rec.FileSize)
	assert.Equal(t, filepath.Join(dir, "report-v1.md"), rec.ArchivePath)

	archived, err := os.ReadFile(rec.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, content, archived, "archive copy must be byte-identical")

	// Simulate the supersession removing the original, then restore.
	require.NoError(t, os.Remove(src))

	restored, err := store.Restore(rec)
	require.NoError(t, err)
	assert.Equal(t, src, restored)

	back, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, content, back, "restored file must be byte-identical")
}

func TestVerify(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "archive"), nil)

	src := filepath.Join(root, "report.md")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))
	dir := filepath.Join(root, "archive", "2025-03-15", "cmd", "topic", "evt")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	rec, err := store.ArchiveFile(src, dir)
	require.NoError(t, err)
	assert.Len(t, rec.Checksum, 64, "checksum is hex SHA-256")
	require.NoError(t, store.Verify(rec))

	// Same-size corruption is caught by the checksum.
	require.NoError(t, os.WriteFile(rec.ArchivePath, []byte("tampere"), 0o644))
	assert.Error(t, store.Verify(rec))

	// Truncation is caught by the size check.
	require.NoError(t, os.WriteFile(rec.ArchivePath, []byte("con"), 0o644))
	assert.Error(t, store.Verify(rec))
}

func TestMetadataRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "archive"), nil)
	dir := filepath.Join(root, "archive", "evt")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	meta := Metadata{
		EventID:              "technical-health-20250315-093000",
		Topic:                "technical-health",
		SupersedingTimestamp: time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC),
		Reason:               "quarterly refresh",
		NewAuthority:         "reports/technical-health-v2.md",
		SupersededFiles:      []string{"reports/technical-health-v1.md"},
		RollbackCommand:      "knowledge superseding rollback technical-health-20250315-093000",
	}
	require.NoError(t, store.WriteMetadata(dir, meta))

	got, err := store.ReadMetadata(dir)
	require.NoError(t, err)
	assert.Equal(t, meta, *got)

	_, err = os.Stat(filepath.Join(dir, MetadataFilename))
	assert.NoError(t, err)
}

func TestRemoveEventDirStaysUnderRoot(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "archive"), nil)

	inside := filepath.Join(root, "archive", "2025-03-15", "cmd", "topic", "evt")
	require.NoError(t, os.MkdirAll(inside, 0o755))
	require.NoError(t, store.RemoveEventDir(inside))
	_, err := os.Stat(inside)
	assert.True(t, os.IsNotExist(err))

	outside := filepath.Join(root, "not-archive")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	assert.Error(t, store.RemoveEventDir(outside), "paths escaping the archive root must be rejected")
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestArchiveFileMissingSource(t *testing.T) {
	root := t.TempDir()
	store := NewStore(filepath.Join(root, "archive"), nil)
	dir := filepath.Join(root, "archive", "evt")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := store.ArchiveFile(filepath.Join(root, "missing.md"), dir)
	assert.Error(t, err)
}
