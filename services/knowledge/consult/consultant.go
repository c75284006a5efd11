// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package consult is the read-only decision engine a command calls before
// producing output for a topic. It never mutates anything and is safe to
// call repeatedly and concurrently: two consultations with no intervening
// mutation return identical advice.
package consult

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/registry"
)

// Recommended actions, in decision-table priority order.
const (
	// ActionProceed: no existing knowledge, produce the output.
	ActionProceed = "proceed"
	// ActionUpdateExisting: the topic is stale and the caller owns it.
	ActionUpdateExisting = "update_existing"
	// ActionCoordinate: the topic is stale but another command owns it.
	ActionCoordinate = "coordinate"
	// ActionConsiderNecessity: the topic is fresh and the caller owns it.
	ActionConsiderNecessity = "consider_necessity"
	// ActionAvoidDuplication: the topic is fresh and owned elsewhere.
	ActionAvoidDuplication = "avoid_duplication"
	// ActionReviewRelated: no exact topic, but related topics exist.
	ActionReviewRelated = "review_related"
)

// DefaultMinSharedKeywords is the related-topic threshold: hyphen-split
// keyword sets sharing at least this many tokens are flagged as related.
// A heuristic, not load-bearing; configurable per Config.
const DefaultMinSharedKeywords = 2

// Config configures a Consultant.
type Config struct {
	// MinSharedKeywords overrides DefaultMinSharedKeywords.
	MinSharedKeywords int

	// DefaultThresholdDays is the operator-configured freshness fallback
	// for topics that do not set their own threshold. Zero means
	// registry.DefaultFreshnessThresholdDays.
	DefaultThresholdDays int

	// Now supplies the current time. Defaults to time.Now; fixed in tests
	// to pin freshness boundaries.
	Now func() time.Time
}

// Knowledge summarizes what the registry already holds for a topic.
type Knowledge struct {
	Topic            string   `json:"topic"`
	CurrentAuthority string   `json:"current_authority"`
	OwnerCommand     string   `json:"owner_command"`
	LastUpdated      string   `json:"last_updated"`
	RelatedFiles     []string `json:"related_files,omitempty"`
	ArchivedCount    int      `json:"archived_count"`
}

// OwnershipStatus relates the consulting command to the topic's owners.
type OwnershipStatus struct {
	IsPrimary    bool   `json:"is_primary"`
	IsSecondary  bool   `json:"is_secondary"`
	PrimaryOwner string `json:"primary_owner,omitempty"`
}

// Freshness reports staleness of the existing knowledge.
type Freshness struct {
	DaysSinceUpdate int  `json:"days_since_update"`
	ThresholdDays   int  `json:"threshold_days"`
	NeedsUpdate     bool `json:"needs_update"`
	// DateKnown is false when LastUpdated was missing or unparseable, in
	// which case NeedsUpdate is forced true.
	DateKnown bool `json:"date_known"`
}

// RelatedTopic is a fuzzy match ranked by keyword overlap.
type RelatedTopic struct {
	Name           string   `json:"name"`
	SharedKeywords []string `json:"shared_keywords"`
	Overlap        int      `json:"overlap"`
}

// Advice is the consultation result.
type Advice struct {
	Command string `json:"command"`
	Topic   string `json:"topic"`
	Scope   string `json:"scope,omitempty"`

	Action    string `json:"action"`
	Rationale string `json:"rationale"`

	ExistingKnowledge *Knowledge      `json:"existing_knowledge,omitempty"`
	OwnershipStatus   OwnershipStatus `json:"ownership_status"`
	FreshnessAnalysis *Freshness      `json:"freshness_analysis,omitempty"`
	RelatedTopics     []RelatedTopic  `json:"related_topics,omitempty"`
	SuggestedActions  []string        `json:"suggested_actions,omitempty"`
}

// Consultant answers "should this command produce output for this topic".
//
// # Thread Safety
//
// Pure reads over the registry store; any number of consultations may run
// in parallel with each other and with mutations (readers see either the
// old or the new document, never a partial one).
type Consultant struct {
	store  *registry.Store
	cfg    Config
	logger *slog.Logger
}

// NewConsultant creates a consultant over the registry store.
func NewConsultant(store *registry.Store, cfg Config, logger *slog.Logger) *Consultant {
	if cfg.MinSharedKeywords <= 0 {
		cfg.MinSharedKeywords = DefaultMinSharedKeywords
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consultant{
		store:  store,
		cfg:    cfg,
		logger: logger.With("component", "consult.Consultant"),
	}
}

// Consult evaluates the decision table for (command, topic, scope).
//
// # Description
//
// First-match-wins: no knowledge ⇒ proceed; exact+stale+primary ⇒
// update_existing; exact+stale+not-owner ⇒ coordinate naming the owner;
// exact+fresh+primary ⇒ consider_necessity; exact+fresh+not-owner ⇒
// avoid_duplication; only related topics ⇒ review_related.
func (c *Consultant) Consult(command, topic, scope string) (*Advice, error) {
	doc, err := c.store.Load()
	if err != nil {
		return nil, err
	}

	advice := &Advice{Command: command, Topic: topic, Scope: scope}

	existing := doc.Topic(topic)
	advice.OwnershipStatus = ownershipStatus(doc, command, topic)

	if existing == nil {
		advice.RelatedTopics = c.relatedTopics(doc, topic)
		if len(advice.RelatedTopics) == 0 {
			advice.Action = ActionProceed
			advice.Rationale = fmt.Sprintf("no existing knowledge for %q; proceed and claim ownership when producing authoritative output", topic)
			advice.SuggestedActions = []string{
				fmt.Sprintf("claim primary ownership of %q", topic),
				"declare superseding intent once authoritative output exists",
			}
		} else {
			advice.Action = ActionReviewRelated
			advice.Rationale = fmt.Sprintf("no exact knowledge for %q, but %d related topic(s) exist; review them before creating a parallel topic",
				topic, len(advice.RelatedTopics))
			for _, rel := range advice.RelatedTopics {
				advice.SuggestedActions = append(advice.SuggestedActions,
					fmt.Sprintf("review %q (shares %s)", rel.Name, strings.Join(rel.SharedKeywords, ", ")))
			}
		}
		c.logConsult(advice)
		return advice, nil
	}

	advice.ExistingKnowledge = &Knowledge{
		Topic:            existing.Name,
		CurrentAuthority: existing.CurrentAuthority,
		OwnerCommand:     existing.OwnerCommand,
		LastUpdated:      existing.LastUpdated,
		RelatedFiles:     slices.Clone(existing.RelatedFiles),
		ArchivedCount:    len(existing.ArchivedFiles),
	}
	freshness := c.freshness(existing)
	advice.FreshnessAnalysis = &freshness

	owner := advice.OwnershipStatus.PrimaryOwner
	isOwner := advice.OwnershipStatus.IsPrimary

	switch {
	case freshness.NeedsUpdate && isOwner:
		advice.Action = ActionUpdateExisting
		advice.Rationale = fmt.Sprintf("%q is %d day(s) old (threshold %d) and %q is its primary owner; update the existing knowledge",
			topic, freshness.DaysSinceUpdate, freshness.ThresholdDays, command)
		advice.SuggestedActions = []string{
			fmt.Sprintf("supersede %q once the refreshed output exists", existing.CurrentAuthority),
		}
	case freshness.NeedsUpdate:
		advice.Action = ActionCoordinate
		if owner == "" {
			advice.Rationale = fmt.Sprintf("%q is stale but has no primary owner; claim ownership before updating", topic)
			advice.SuggestedActions = []string{fmt.Sprintf("claim primary ownership of %q", topic)}
		} else {
			advice.Rationale = fmt.Sprintf("%q is stale but owned by %q; coordinate with the owner instead of updating unilaterally",
				topic, owner)
			advice.SuggestedActions = []string{
				fmt.Sprintf("ask %q to refresh %q", owner, topic),
				fmt.Sprintf("request secondary ownership of %q", topic),
			}
		}
	case isOwner:
		advice.Action = ActionConsiderNecessity
		advice.Rationale = fmt.Sprintf("%q was updated %d day(s) ago (threshold %d); as its owner, consider whether another update is necessary",
			topic, freshness.DaysSinceUpdate, freshness.ThresholdDays)
	default:
		advice.Action = ActionAvoidDuplication
		advice.Rationale = fmt.Sprintf("%q is fresh and owned by %q; producing parallel output would duplicate it",
			topic, owner)
		advice.SuggestedActions = []string{
			fmt.Sprintf("consume the current authority %q", existing.CurrentAuthority),
		}
	}

	c.logConsult(advice)
	return advice, nil
}

func (c *Consultant) logConsult(advice *Advice) {
	c.logger.Debug("consultation",
		"command", advice.Command,
		"topic", advice.Topic,
		"action", advice.Action)
}

func ownershipStatus(doc *registry.Document, command, topic string) OwnershipStatus {
	owner := doc.PrimaryOwner(topic)
	return OwnershipStatus{
		IsPrimary:    owner != "" && owner == command,
		IsSecondary:  slices.Contains(doc.SecondaryOwners(topic), command),
		PrimaryOwner: owner,
	}
}

// freshness computes staleness in whole days. A topic exactly at its
// threshold is still fresh; missing or unparseable dates are stale.
func (c *Consultant) freshness(t *registry.Topic) Freshness {
	threshold := t.ThresholdOr(c.cfg.DefaultThresholdDays)
	last, ok := t.LastUpdatedTime()
	if !ok {
		return Freshness{ThresholdDays: threshold, NeedsUpdate: true}
	}

	now := c.cfg.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(today.Sub(last).Hours() / 24)
	return Freshness{
		DaysSinceUpdate: days,
		ThresholdDays:   threshold,
		NeedsUpdate:     days > threshold,
		DateKnown:       true,
	}
}

// relatedTopics fuzzy-matches the requested topic against every registry
// topic by hyphen-split keyword overlap, ranked by overlap (ties broken
// by name for determinism).
func (c *Consultant) relatedTopics(doc *registry.Document, topic string) []RelatedTopic {
	want := keywordSet(topic)
	if len(want) == 0 {
		return nil
	}

	var related []RelatedTopic
	for _, name := range doc.TopicNames() {
		shared := sharedKeywords(want, keywordSet(name))
		if len(shared) >= c.cfg.MinSharedKeywords {
			related = append(related, RelatedTopic{
				Name:           name,
				SharedKeywords: shared,
				Overlap:        len(shared),
			})
		}
	}
	slices.SortFunc(related, func(a, b RelatedTopic) int {
		if a.Overlap != b.Overlap {
			return b.Overlap - a.Overlap
		}
		return strings.Compare(a.Name, b.Name)
	})
	return related
}

// keywordSet splits a topic name on hyphens into lowercase keywords.
func keywordSet(topic string) map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Split(strings.ToLower(topic), "-") {
		if part != "" {
			set[part] = true
		}
	}
	return set
}

func sharedKeywords(a, b map[string]bool) []string {
	var shared []string
	for kw := range a {
		if b[kw] {
			shared = append(shared, kw)
		}
	}
	slices.Sort(shared)
	return shared
}
