// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// runOwnershipAssign installs a topic's primary owner and optional
// secondary owners, displacing any previous assignment.
func runOwnershipAssign(cmd *cobra.Command, args []string) {
	start := time.Now()
	topic, primary := args[0], args[1]
	secondaries := args[2:]

	services, err := buildApp()
	if err != nil {
		OutputResult("ownership.assign", start, nil, err)
		return
	}
	defer services.Close()

	assignment, err := services.Ownership.Assign(context.Background(), topic, primary, secondaries)
	OutputResult("ownership.assign", start, assignment, err)
}

// runOwnershipClaim takes primary ownership of an unowned topic. Exactly
// one of two racing claims wins; the loser's result names the winner.
func runOwnershipClaim(cmd *cobra.Command, args []string) {
	start := time.Now()
	justification := ""
	if len(args) == 3 {
		justification = args[2]
	}

	services, err := buildApp()
	if err != nil {
		OutputResult("ownership.claim", start, nil, err)
		return
	}
	defer services.Close()

	claim, err := services.Ownership.Claim(context.Background(), args[0], args[1], justification)
	OutputResult("ownership.claim", start, claim, err)
}

// runOwnershipShow reports a topic's primary and secondary owners.
func runOwnershipShow(cmd *cobra.Command, args []string) {
	start := time.Now()

	services, err := buildApp()
	if err != nil {
		OutputResult("ownership.ownership", start, nil, err)
		return
	}
	defer services.Close()

	status, err := services.Ownership.OwnershipOf(args[0])
	OutputResult("ownership.ownership", start, status, err)
}

// runOwnershipTopics lists the topics a command is responsible for.
func runOwnershipTopics(cmd *cobra.Command, args []string) {
	start := time.Now()

	services, err := buildApp()
	if err != nil {
		OutputResult("ownership.topics", start, nil, err)
		return
	}
	defer services.Close()

	topics, err := services.Ownership.TopicsOf(args[0])
	OutputResult("ownership.topics", start, topics, err)
}

// runOwnershipCollaborate suggests how a command should engage with a
// topic it does not exclusively own.
func runOwnershipCollaborate(cmd *cobra.Command, args []string) {
	start := time.Now()

	services, err := buildApp()
	if err != nil {
		OutputResult("ownership.collaborate", start, nil, err)
		return
	}
	defer services.Close()

	advice, err := services.Ownership.SuggestCollaboration(args[0], args[1])
	OutputResult("ownership.collaborate", start, advice, err)
}

// runOwnershipConflicts scans the whole registry for ownership
// inconsistencies. Diagnostic only; nothing is repaired.
func runOwnershipConflicts(cmd *cobra.Command, args []string) {
	start := time.Now()

	services, err := buildApp()
	if err != nil {
		OutputResult("ownership.conflicts", start, nil, err)
		return
	}
	defer services.Close()

	report, err := services.Ownership.DetectConflicts()
	OutputResult("ownership.conflicts", start, report, err)
}
