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

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/superseding"
)

// runSupersedingDeclare records a superseding intent without touching any
// files. The printed event id is the handle for `superseding complete`.
func runSupersedingDeclare(cmd *cobra.Command, args []string) {
	start := time.Now()
	command, topic := args[0], args[1]
	supersededFiles := args[2:]

	services, err := buildApp()
	if err != nil {
		OutputResult("superseding.declare", start, nil, err)
		return
	}
	defer services.Close()

	receipt, err := services.Coordinator.DeclareIntent(context.Background(),
		command, topic, supersededFiles, supersedeReason)
	OutputResult("superseding.declare", start, receipt, err)
}

// runSupersedingExecute archives the superseded files, repoints the topic
// at the new authority, and appends the completed audit event.
func runSupersedingExecute(cmd *cobra.Command, args []string) {
	start := time.Now()

	services, err := buildApp()
	if err != nil {
		OutputResult("superseding.execute", start, nil, err)
		return
	}
	defer services.Close()

	result, err := services.Coordinator.Execute(context.Background(), superseding.ExecuteRequest{
		Command:          args[0],
		Topic:            args[1],
		NewAuthorityPath: args[2],
		SupersededFiles:  args[3:],
		Reason:           supersedeReason,
		Type:             supersedeType,
	})
	OutputResult("superseding.execute", start, result, err)
}

// runSupersedingComplete executes a previously declared intent against
// the now-existing new authority file.
func runSupersedingComplete(cmd *cobra.Command, args []string) {
	start := time.Now()

	services, err := buildApp()
	if err != nil {
		OutputResult("superseding.complete", start, nil, err)
		return
	}
	defer services.Close()

	result, err := services.Coordinator.CompleteFromIntent(context.Background(), args[0], args[1])
	OutputResult("superseding.complete", start, result, err)
}

// runSupersedingRollback restores the archived files of a completed event
// and appends a rollback event referencing it.
func runSupersedingRollback(cmd *cobra.Command, args []string) {
	start := time.Now()

	services, err := buildApp()
	if err != nil {
		OutputResult("superseding.rollback", start, nil, err)
		return
	}
	defer services.Close()

	result, err := services.Coordinator.Rollback(context.Background(), args[0])
	OutputResult("superseding.rollback", start, result, err)
}
