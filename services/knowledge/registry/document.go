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
	"slices"
	"strings"
)

// NewDocument returns an empty but fully initialized registry document.
func NewDocument() *Document {
	return &Document{
		Topics:           make(map[string]*Topic),
		CommandOwnership: make(map[string]*CommandOwnership),
	}
}

// normalize initializes nil maps after unmarshalling a hand-edited or
// partial document.
func (d *Document) normalize() {
	if d.Topics == nil {
		d.Topics = make(map[string]*Topic)
	}
	if d.CommandOwnership == nil {
		d.CommandOwnership = make(map[string]*CommandOwnership)
	}
	for name, t := range d.Topics {
		if t != nil && t.Name == "" {
			t.Name = name
		}
	}
}

// Topic returns the named topic, nil if absent.
func (d *Document) Topic(name string) *Topic {
	return d.Topics[name]
}

// EnsureTopic returns the named topic, creating an empty record when the
// topic is new to the registry. New topics carry no explicit freshness
// threshold so the configured default keeps applying to them.
func (d *Document) EnsureTopic(name string) *Topic {
	if t, ok := d.Topics[name]; ok && t != nil {
		return t
	}
	t := &Topic{Name: name}
	d.Topics[name] = t
	return t
}

// EnsureOwnership returns the ownership record for a command, creating an
// empty one when the command has none yet.
func (d *Document) EnsureOwnership(command string) *CommandOwnership {
	if o, ok := d.CommandOwnership[command]; ok && o != nil {
		return o
	}
	o := &CommandOwnership{}
	d.CommandOwnership[command] = o
	return o
}

// PrimaryOwner returns the command holding the topic in PrimaryTopics,
// "" when no command does. The ownership index is the source of truth;
// Topic.OwnerCommand is only the denormalized projection.
func (d *Document) PrimaryOwner(topic string) string {
	for command, own := range d.CommandOwnership {
		if own != nil && slices.Contains(own.PrimaryTopics, topic) {
			return command
		}
	}
	return ""
}

// SecondaryOwners returns every command holding the topic in
// SecondaryTopics, sorted for deterministic output.
func (d *Document) SecondaryOwners(topic string) []string {
	var owners []string
	for command, own := range d.CommandOwnership {
		if own != nil && slices.Contains(own.SecondaryTopics, topic) {
			owners = append(owners, command)
		}
	}
	slices.Sort(owners)
	return owners
}

// HasPermission reports whether a command holds primary or secondary
// ownership of the topic.
func (d *Document) HasPermission(command, topic string) bool {
	own := d.CommandOwnership[command]
	if own == nil {
		return false
	}
	return slices.Contains(own.PrimaryTopics, topic) ||
		slices.Contains(own.SecondaryTopics, topic)
}

// RemoveTopicEverywhere strips the topic from every command's primary and
// secondary lists. Used before installing a new assignment so primary
// uniqueness is preserved by construction.
func (d *Document) RemoveTopicEverywhere(topic string) {
	for _, own := range d.CommandOwnership {
		if own == nil {
			continue
		}
		own.PrimaryTopics = slices.DeleteFunc(own.PrimaryTopics, func(t string) bool { return t == topic })
		own.SecondaryTopics = slices.DeleteFunc(own.SecondaryTopics, func(t string) bool { return t == topic })
	}
}

// IsProtected reports whether the topic requires manual approval for
// supersession.
func (d *Document) IsProtected(topic string) bool {
	return slices.Contains(d.SupersedingPolicies.ProtectionRules.ProtectedTopics, topic)
}

// IsKnownCommand validates a command name against KnownCommands. An empty
// set accepts any non-empty name.
func (d *Document) IsKnownCommand(command string) bool {
	if strings.TrimSpace(command) == "" {
		return false
	}
	if len(d.KnownCommands) == 0 {
		return true
	}
	return slices.Contains(d.KnownCommands, command)
}

// OverOwnershipThreshold returns the effective over-ownership limit.
func (d *Document) OverOwnershipThreshold() int {
	return d.OverOwnershipThresholdOr(0)
}

// OverOwnershipThresholdOr returns the effective over-ownership limit
// with an operator-configured fallback. The document's own limit wins,
// then the fallback, then DefaultMaxPrimaryTopics.
func (d *Document) OverOwnershipThresholdOr(fallback int) int {
	if d.MaxPrimaryTopics > 0 {
		return d.MaxPrimaryTopics
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultMaxPrimaryTopics
}

// TopicNames returns all topic names, sorted.
func (d *Document) TopicNames() []string {
	names := make([]string, 0, len(d.Topics))
	for name := range d.Topics {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
