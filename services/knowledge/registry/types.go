// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry persists the topic registry: every known topic, its
// current authoritative file, the command ownership index, and the
// superseding policies. The registry is one of the coordinated documents
// guarded by the knowledge document lock.
package registry

import (
	"time"
)

// DateLayout is the format of Topic.LastUpdated. Dates, not timestamps:
// freshness is measured in whole days.
const DateLayout = "2006-01-02"

// DefaultFreshnessThresholdDays applies when a topic does not set its own
// threshold.
const DefaultFreshnessThresholdDays = 30

// DefaultMaxPrimaryTopics is the over-ownership threshold used by conflict
// detection when the document does not configure one.
const DefaultMaxPrimaryTopics = 5

// Topic is one named unit of knowledge with a single authoritative file.
type Topic struct {
	Name             string `yaml:"name"`
	CurrentAuthority string `yaml:"current_authority"`

	// OwnerCommand denormalizes the primary owner from the ownership
	// index. The ownership manager keeps it in sync on every mutation;
	// conflict detection reports any drift as ownership_mismatch.
	OwnerCommand string `yaml:"owner_command"`

	// LastUpdated is the date (DateLayout) of the last supersession.
	LastUpdated string `yaml:"last_updated"`

	// FreshnessThresholdDays is the staleness boundary. A topic exactly
	// this many days old is still fresh; one day older is stale.
	FreshnessThresholdDays int `yaml:"freshness_threshold_days"`

	RelatedFiles  []string `yaml:"related_files,omitempty"`
	ArchivedFiles []string `yaml:"archived_files,omitempty"`

	ConflictsDetected bool     `yaml:"conflicts_detected"`
	ConflictDetails   []string `yaml:"conflict_details,omitempty"`
}

// Threshold returns the effective freshness threshold for the topic.
func (t *Topic) Threshold() int {
	return t.ThresholdOr(0)
}

// ThresholdOr returns the effective freshness threshold with an
// operator-configured fallback. The topic's own threshold wins, then the
// fallback, then DefaultFreshnessThresholdDays.
func (t *Topic) ThresholdOr(fallback int) int {
	if t.FreshnessThresholdDays > 0 {
		return t.FreshnessThresholdDays
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultFreshnessThresholdDays
}

// LastUpdatedTime parses LastUpdated. The bool is false when the date is
// missing or unparseable, which consultation treats as "needs update".
func (t *Topic) LastUpdatedTime() (time.Time, bool) {
	if t.LastUpdated == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(DateLayout, t.LastUpdated)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// CommandOwnership lists the topics a command is responsible for.
type CommandOwnership struct {
	// PrimaryTopics the command owns exclusively. A topic appears in at
	// most one command's PrimaryTopics index-wide.
	PrimaryTopics []string `yaml:"primary_topics"`

	// SecondaryTopics the command contributes to without exclusive
	// responsibility. No uniqueness constraint.
	SecondaryTopics []string `yaml:"secondary_topics"`
}

// ProtectionRules names topics whose supersession requires manual approval.
type ProtectionRules struct {
	ProtectedTopics []string `yaml:"protected_topics"`
}

// SupersedingPolicies configures coordinator-side policy.
type SupersedingPolicies struct {
	ProtectionRules ProtectionRules `yaml:"protection_rules"`
}

// Document is the full registry document as persisted in registry.yaml.
type Document struct {
	Topics              map[string]*Topic            `yaml:"topics"`
	CommandOwnership    map[string]*CommandOwnership `yaml:"command_ownership"`
	SupersedingPolicies SupersedingPolicies          `yaml:"superseding_policies"`

	// KnownCommands is the set of valid command names for ownership
	// assignment. Empty means any name is accepted.
	KnownCommands []string `yaml:"known_commands,omitempty"`

	// MaxPrimaryTopics overrides DefaultMaxPrimaryTopics for
	// over-ownership conflict detection.
	MaxPrimaryTopics int `yaml:"max_primary_topics,omitempty"`
}
