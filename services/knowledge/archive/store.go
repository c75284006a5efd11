// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive stores byte-exact snapshots of superseded files, keyed
// by event id, plus a per-event metadata sidecar. The tree is append-only:
// concurrent executions on different topics never write the same event
// directory.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/audit"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/internal/atomicfile"
)

// MetadataFilename is the per-event sidecar written next to the copies.
const MetadataFilename = "superseding-metadata.yaml"

// Metadata is the sidecar content. RollbackCommand is a literal command
// line an operator can paste to undo the supersession.
type Metadata struct {
	EventID              string    `yaml:"event_id"`
	Topic                string    `yaml:"topic"`
	SupersedingTimestamp time.Time `yaml:"superseding_timestamp"`
	Reason               string    `yaml:"reason"`
	NewAuthority         string    `yaml:"new_authority"`
	SupersededFiles      []string  `yaml:"superseded_files"`
	RollbackCommand      string    `yaml:"rollback_command"`
}

// Store manages the archive tree rooted at
// <root>/<YYYY-MM-DD>/<command>/<topic>/<event_id>/.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates an archive store rooted at the given directory.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:   root,
		logger: logger.With("component", "archive.Store"),
	}
}

// Root returns the archive root directory.
func (s *Store) Root() string { return s.root }

// EventDir returns the archive directory for one supersession event.
func (s *Store) EventDir(date time.Time, command, topic, eventID string) string {
	return filepath.Join(s.root, date.Format("2006-01-02"), command, topic, eventID)
}

// ArchiveFile copies src into dir and returns the archive record.
//
// # Description
//
// The copy is byte-exact and fsynced before the record is returned; the
// caller removes the original only after every copy of the event has
// succeeded. The destination keeps the source's base name.
func (s *Store) ArchiveFile(src, dir string) (audit.ArchiveRecord, error) {
	var rec audit.ArchiveRecord

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rec, fmt.Errorf("creating archive directory %s: %w", dir, err)
	}

	dst := filepath.Join(dir, filepath.Base(src))
	size, sum, err := copyFile(src, dst)
	if err != nil {
		return rec, fmt.Errorf("archiving %s: %w", src, err)
	}

	rec = audit.ArchiveRecord{
		OriginalPath:     src,
		ArchivePath:      dst,
		FileSize:         size,
		Checksum:         sum,
		ArchiveTimestamp: time.Now(),
	}
	s.logger.Debug("archived file",
		"original", src,
		"archive", dst,
		"bytes", size)
	return rec, nil
}

// Restore copies an archived file back to its original path, creating
// parent directories as needed, and returns the restored path.
func (s *Store) Restore(rec audit.ArchiveRecord) (string, error) {
	if err := os.MkdirAll(filepath.Dir(rec.OriginalPath), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", rec.OriginalPath, err)
	}
	if _, _, err := copyFile(rec.ArchivePath, rec.OriginalPath); err != nil {
		return "", fmt.Errorf("restoring %s: %w", rec.OriginalPath, err)
	}
	s.logger.Info("restored archived file",
		"archive", rec.ArchivePath,
		"restored_to", rec.OriginalPath)
	return rec.OriginalPath, nil
}

// Verify checks that the archived copy still matches its record: the file
// exists, has the recorded size, and hashes to the recorded checksum.
func (s *Store) Verify(rec audit.ArchiveRecord) error {
	info, err := os.Stat(rec.ArchivePath)
	if err != nil {
		return fmt.Errorf("archive copy %s: %w", rec.ArchivePath, err)
	}
	if info.Size() != rec.FileSize {
		return fmt.Errorf("archive copy %s: size %d does not match recorded %d",
			rec.ArchivePath, info.Size(), rec.FileSize)
	}
	if rec.Checksum != "" {
		sum, err := hashFile(rec.ArchivePath)
		if err != nil {
			return fmt.Errorf("archive copy %s: %w", rec.ArchivePath, err)
		}
		if sum != rec.Checksum {
			return fmt.Errorf("archive copy %s: checksum %s does not match recorded %s",
				rec.ArchivePath, sum, rec.Checksum)
		}
	}
	return nil
}

// hashFile returns the hex SHA-256 of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteMetadata writes the per-event sidecar into dir.
func (s *Store) WriteMetadata(dir string, meta Metadata) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding archive metadata: %w", err)
	}
	path := filepath.Join(dir, MetadataFilename)
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing archive metadata %s: %w", path, err)
	}
	return nil
}

// ReadMetadata reads the per-event sidecar from dir.
func (s *Store) ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFilename))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing archive metadata in %s: %w", dir, err)
	}
	return &meta, nil
}

// RemoveEventDir deletes a (typically partial) event directory. Used by
// operators recovering from a mid-execute storage failure: the abandoned
// event id's directory is removed and the execute retried from scratch.
func (s *Store) RemoveEventDir(dir string) error {
	rel, err := filepath.Rel(s.root, dir)
	if err != nil || rel == "." || rel == ".." || filepath.IsAbs(rel) ||
		len(rel) >= 2 && rel[:2] == ".." {
		return fmt.Errorf("refusing to remove %s: outside archive root %s", dir, s.root)
	}
	return os.RemoveAll(dir)
}

// copyFile copies src to dst byte-for-byte, preserving the source mode,
// hashing the content in flight, and fsyncing before returning the byte
// count and hex SHA-256.
func copyFile(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, "", err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, "", err
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return 0, "", err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return 0, "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
