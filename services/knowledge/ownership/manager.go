// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ownership assigns, claims, and queries topic ownership, and
// scans the registry for ownership conflicts. The ownership index is the
// single source of truth; the denormalized Topic.OwnerCommand field is
// synced on every mutation and audited by DetectConflicts.
package ownership

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/registry"
)

// Config configures a Manager.
type Config struct {
	// MaxPrimaryTopics is the operator-configured over-ownership fallback
	// for conflict detection. The registry document's own limit wins;
	// zero means registry.DefaultMaxPrimaryTopics.
	MaxPrimaryTopics int
}

// Manager mutates and queries the command ownership index.
//
// # Thread Safety
//
// Safe for concurrent use. Mutations serialize through the registry
// store's document lock; queries are lock-free reads.
type Manager struct {
	store  *registry.Store
	cfg    Config
	logger *slog.Logger
}

// NewManager creates an ownership manager over the registry store.
func NewManager(store *registry.Store, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "ownership.Manager"),
	}
}

// Assignment is the result of a successful Assign.
type Assignment struct {
	Topic           string   `json:"topic"`
	PrimaryOwner    string   `json:"primary_owner"`
	SecondaryOwners []string `json:"secondary_owners,omitempty"`
	// PreviousOwner is the primary owner displaced by this assignment,
	// "" when the topic was unowned.
	PreviousOwner string `json:"previous_owner,omitempty"`
}

// Assign installs a new ownership assignment for a topic.
//
// # Description
//
// Validates every command name against the known set, removes the topic
// from all commands' lists (preserving primary uniqueness by
// construction), installs the new assignment, and syncs the topic's
// denormalized OwnerCommand. The whole read-validate-write runs under the
// exclusive document lock.
//
// # Outputs
//
//   - *Assignment: The installed assignment.
//   - error: *InvalidCommandError on unknown names, lock.ErrBusy on
//     contention.
func (m *Manager) Assign(ctx context.Context, topic, primary string, secondaries []string) (*Assignment, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	var result *Assignment
	err := m.store.Mutate(ctx, fmt.Sprintf("assign ownership of %s", topic), func(doc *registry.Document) error {
		if !doc.IsKnownCommand(primary) {
			return &InvalidCommandError{Command: primary}
		}
		for _, cmd := range secondaries {
			if !doc.IsKnownCommand(cmd) {
				return &InvalidCommandError{Command: cmd}
			}
		}

		previous := doc.PrimaryOwner(topic)
		doc.RemoveTopicEverywhere(topic)

		doc.EnsureOwnership(primary).PrimaryTopics = append(
			doc.EnsureOwnership(primary).PrimaryTopics, topic)
		for _, cmd := range secondaries {
			if cmd == primary {
				continue
			}
			own := doc.EnsureOwnership(cmd)
			if !slices.Contains(own.SecondaryTopics, topic) {
				own.SecondaryTopics = append(own.SecondaryTopics, topic)
			}
		}

		doc.EnsureTopic(topic).OwnerCommand = primary

		result = &Assignment{
			Topic:           topic,
			PrimaryOwner:    primary,
			SecondaryOwners: slices.Clone(secondaries),
			PreviousOwner:   previous,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("ownership assigned",
		"topic", topic,
		"primary", primary,
		"secondaries", secondaries)
	return result, nil
}

// Claim is the result of a successful Claim.
type Claim struct {
	Topic         string `json:"topic"`
	Owner         string `json:"owner"`
	Justification string `json:"justification"`
}

// Claim takes primary ownership of an unowned topic.
//
// # Description
//
// Succeeds only when no primary owner exists. The precondition is
// re-validated inside the exclusive lock: of two concurrent claims on the
// same unowned topic, exactly one wins and the loser fails with
// *AlreadyOwnedError naming the winner.
func (m *Manager) Claim(ctx context.Context, topic, command, justification string) (*Claim, error) {
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	err := m.store.Mutate(ctx, fmt.Sprintf("claim ownership of %s", topic), func(doc *registry.Document) error {
		if !doc.IsKnownCommand(command) {
			return &InvalidCommandError{Command: command}
		}
		if owner := doc.PrimaryOwner(topic); owner != "" {
			return &AlreadyOwnedError{Topic: topic, CurrentOwner: owner}
		}

		own := doc.EnsureOwnership(command)
		own.SecondaryTopics = slices.DeleteFunc(own.SecondaryTopics, func(t string) bool { return t == topic })
		own.PrimaryTopics = append(own.PrimaryTopics, topic)
		doc.EnsureTopic(topic).OwnerCommand = command
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("ownership claimed",
		"topic", topic,
		"command", command,
		"justification", justification)
	return &Claim{Topic: topic, Owner: command, Justification: justification}, nil
}

// Status describes who owns a topic, derived purely from the ownership
// index.
type Status struct {
	Topic           string   `json:"topic"`
	PrimaryOwner    string   `json:"primary_owner,omitempty"`
	SecondaryOwners []string `json:"secondary_owners,omitempty"`
	Registered      bool     `json:"registered"`
}

// OwnershipOf returns the ownership status of a topic. Pure read.
func (m *Manager) OwnershipOf(topic string) (*Status, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	return statusOf(doc, topic), nil
}

func statusOf(doc *registry.Document, topic string) *Status {
	return &Status{
		Topic:           topic,
		PrimaryOwner:    doc.PrimaryOwner(topic),
		SecondaryOwners: doc.SecondaryOwners(topic),
		Registered:      doc.Topic(topic) != nil,
	}
}

// CommandTopics lists a command's responsibilities.
type CommandTopics struct {
	Command         string   `json:"command"`
	PrimaryTopics   []string `json:"primary_topics"`
	SecondaryTopics []string `json:"secondary_topics"`
}

// TopicsOf returns the topics a command owns or contributes to. Pure read.
func (m *Manager) TopicsOf(command string) (*CommandTopics, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	result := &CommandTopics{Command: command}
	if own := doc.CommandOwnership[command]; own != nil {
		result.PrimaryTopics = slices.Sorted(slices.Values(own.PrimaryTopics))
		result.SecondaryTopics = slices.Sorted(slices.Values(own.SecondaryTopics))
	}
	return result, nil
}

// Collaboration roles returned by SuggestCollaboration.
const (
	RoleClaimOwnership      = "claim_ownership"
	RolePrimaryOwner        = "primary_owner"
	RoleSecondaryOwner      = "secondary_owner"
	RoleExternalContributor = "external_contributor"
)

// CollaborationAdvice recommends how a command should engage with a topic
// it does not exclusively own.
type CollaborationAdvice struct {
	Command string `json:"command"`
	Topic   string `json:"topic"`
	Role    string `json:"role"`
	// PrimaryOwner names the current owner for the external_contributor
	// and secondary_owner roles.
	PrimaryOwner string `json:"primary_owner,omitempty"`
	// Approaches are ranked options, most preferred first.
	Approaches []string `json:"approaches,omitempty"`
}

// SuggestCollaboration advises a command on engaging with a topic. Pure
// read.
func (m *Manager) SuggestCollaboration(command, topic string) (*CollaborationAdvice, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	advice := &CollaborationAdvice{Command: command, Topic: topic}
	owner := doc.PrimaryOwner(topic)

	switch {
	case owner == "":
		advice.Role = RoleClaimOwnership
		advice.Approaches = []string{
			fmt.Sprintf("claim primary ownership of %q before producing output", topic),
		}
	case owner == command:
		advice.Role = RolePrimaryOwner
	case slices.Contains(doc.SecondaryOwners(topic), command):
		advice.Role = RoleSecondaryOwner
		advice.PrimaryOwner = owner
	default:
		advice.Role = RoleExternalContributor
		advice.PrimaryOwner = owner
		advice.Approaches = []string{
			fmt.Sprintf("request secondary ownership of %q from %q", topic, owner),
			fmt.Sprintf("propose a joint analysis with %q", owner),
			"propose a complementary analysis under a non-overlapping topic",
		}
	}
	return advice, nil
}

// Conflict types reported by DetectConflicts.
const (
	ConflictUnownedTopic      = "unowned_topic"
	ConflictOwnershipMismatch = "ownership_mismatch"
	ConflictOverOwnership     = "over_ownership"
)

// Conflict is one detected inconsistency. Diagnostic only; detection
// never auto-repairs.
type Conflict struct {
	Type    string `json:"type"`
	Topic   string `json:"topic,omitempty"`
	Command string `json:"command,omitempty"`
	Detail  string `json:"detail"`
}

// ConflictReport is the result of a registry-wide conflict scan.
type ConflictReport struct {
	Conflicts     []Conflict `json:"conflicts"`
	TopicsScanned int        `json:"topics_scanned"`
}

// DetectConflicts scans the registry for ownership inconsistencies:
// topics absent from the ownership index, denormalized owners that
// disagree with the index, and commands holding more primary topics than
// the configured threshold. Pure read, deterministic order.
func (m *Manager) DetectConflicts() (*ConflictReport, error) {
	doc, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	report := &ConflictReport{TopicsScanned: len(doc.Topics)}

	for _, name := range doc.TopicNames() {
		topic := doc.Topic(name)
		indexOwner := doc.PrimaryOwner(name)
		if indexOwner == "" {
			report.Conflicts = append(report.Conflicts, Conflict{
				Type:   ConflictUnownedTopic,
				Topic:  name,
				Detail: fmt.Sprintf("topic %q has no primary owner in the ownership index", name),
			})
			continue
		}
		if topic.OwnerCommand != indexOwner {
			report.Conflicts = append(report.Conflicts, Conflict{
				Type:  ConflictOwnershipMismatch,
				Topic: name,
				Detail: fmt.Sprintf("topic %q records owner %q but the ownership index says %q",
					name, topic.OwnerCommand, indexOwner),
			})
		}
	}

	limit := doc.OverOwnershipThresholdOr(m.cfg.MaxPrimaryTopics)
	commands := make([]string, 0, len(doc.CommandOwnership))
	for cmd := range doc.CommandOwnership {
		commands = append(commands, cmd)
	}
	slices.Sort(commands)
	for _, cmd := range commands {
		own := doc.CommandOwnership[cmd]
		if own != nil && len(own.PrimaryTopics) > limit {
			report.Conflicts = append(report.Conflicts, Conflict{
				Type:    ConflictOverOwnership,
				Command: cmd,
				Detail: fmt.Sprintf("command %q holds %d primary topics (limit %d)",
					cmd, len(own.PrimaryTopics), limit),
			})
		}
	}

	if len(report.Conflicts) > 0 {
		m.logger.Warn("ownership conflicts detected",
			"count", len(report.Conflicts))
	}
	return report, nil
}
