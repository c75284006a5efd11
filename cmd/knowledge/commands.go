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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath    string // CLI override for the config file location
	stateDir      string // CLI override for config state_dir
	compactOutput bool   // JSON without indentation
	quietLogs     bool   // Suppress stderr log output

	supersedeReason string // --reason for declare/execute
	supersedeType   string // --type for execute (refresh, consolidation, ...)

	rootCmd = &cobra.Command{
		Use:   "knowledge",
		Short: "A cli to coordinate derived knowledge between analysis commands",
		Long: `Knowledge coordinates the derived-knowledge artifacts that
				concurrently running analysis commands produce: who owns a
				topic, whether existing output is still fresh, and how stale
				output is superseded with a full archival audit trail.`,
	}

	// --- Consultation ---
	consultCmd = &cobra.Command{
		Use:   "consult [command] [topic] [scope]",
		Short: "Ask whether a command should produce output for a topic",
		Args:  cobra.RangeArgs(2, 3),
		Run:   runConsult, // Defined in cmd_consult.go
	}

	// --- Ownership ---
	ownershipCmd = &cobra.Command{
		Use:   "ownership",
		Short: "Manage and inspect topic ownership",
	}
	ownershipAssignCmd = &cobra.Command{
		Use:   "assign [topic] [primary] [secondary...]",
		Short: "Assign a primary owner (and optional secondaries) to a topic",
		Args:  cobra.MinimumNArgs(2),
		Run:   runOwnershipAssign, // Defined in cmd_ownership.go
	}
	ownershipClaimCmd = &cobra.Command{
		Use:   "claim [topic] [command] [justification]",
		Short: "Claim primary ownership of an unowned topic",
		Args:  cobra.RangeArgs(2, 3),
		Run:   runOwnershipClaim, // Defined in cmd_ownership.go
	}
	ownershipShowCmd = &cobra.Command{
		Use:   "ownership [topic]",
		Short: "Show who owns a topic",
		Args:  cobra.ExactArgs(1),
		Run:   runOwnershipShow, // Defined in cmd_ownership.go
	}
	ownershipTopicsCmd = &cobra.Command{
		Use:   "topics [command]",
		Short: "List the topics a command owns or contributes to",
		Args:  cobra.ExactArgs(1),
		Run:   runOwnershipTopics, // Defined in cmd_ownership.go
	}
	ownershipCollaborateCmd = &cobra.Command{
		Use:   "collaborate [command] [topic]",
		Short: "Suggest how a command should engage with an owned topic",
		Args:  cobra.ExactArgs(2),
		Run:   runOwnershipCollaborate, // Defined in cmd_ownership.go
	}
	ownershipConflictsCmd = &cobra.Command{
		Use:   "conflicts",
		Short: "Scan the registry for ownership inconsistencies",
		Args:  cobra.NoArgs,
		Run:   runOwnershipConflicts, // Defined in cmd_ownership.go
	}

	// --- Superseding ---
	supersedingCmd = &cobra.Command{
		Use:   "superseding",
		Short: "Archive stale knowledge and repoint topics at new output",
	}
	supersedingDeclareCmd = &cobra.Command{
		Use:   "declare [command] [topic] [superseded-file...]",
		Short: "Declare intent to supersede files once new output exists",
		Args:  cobra.MinimumNArgs(2),
		Run:   runSupersedingDeclare, // Defined in cmd_superseding.go
	}
	supersedingExecuteCmd = &cobra.Command{
		Use:   "execute [command] [topic] [new-authority] [superseded-file...]",
		Short: "Execute a supersession: archive old files, repoint the topic",
		Args:  cobra.MinimumNArgs(4),
		Run:   runSupersedingExecute, // Defined in cmd_superseding.go
	}
	supersedingCompleteCmd = &cobra.Command{
		Use:   "complete [intent-event-id] [new-authority]",
		Short: "Complete a previously declared superseding intent",
		Args:  cobra.ExactArgs(2),
		Run:   runSupersedingComplete, // Defined in cmd_superseding.go
	}
	supersedingRollbackCmd = &cobra.Command{
		Use:   "rollback [event-id]",
		Short: "Restore the archived files of a completed supersession",
		Args:  cobra.ExactArgs(1),
		Run:   runSupersedingRollback, // Defined in cmd_superseding.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to the config file (default ~/.aleutian/knowledge.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "",
		"Override the configured state directory")
	rootCmd.PersistentFlags().BoolVar(&compactOutput, "compact", false,
		"Emit compact JSON without indentation")
	rootCmd.PersistentFlags().BoolVarP(&quietLogs, "quiet", "q", false,
		"Suppress log output on stderr")

	supersedingDeclareCmd.Flags().StringVar(&supersedeReason, "reason", "",
		"Why the files will be superseded")
	supersedingExecuteCmd.Flags().StringVar(&supersedeReason, "reason", "",
		"Why the files are superseded")
	supersedingExecuteCmd.Flags().StringVar(&supersedeType, "type", "refresh",
		"Kind of supersession (refresh, consolidation, correction)")

	ownershipCmd.AddCommand(ownershipAssignCmd)
	ownershipCmd.AddCommand(ownershipClaimCmd)
	ownershipCmd.AddCommand(ownershipShowCmd)
	ownershipCmd.AddCommand(ownershipTopicsCmd)
	ownershipCmd.AddCommand(ownershipCollaborateCmd)
	ownershipCmd.AddCommand(ownershipConflictsCmd)

	supersedingCmd.AddCommand(supersedingDeclareCmd)
	supersedingCmd.AddCommand(supersedingExecuteCmd)
	supersedingCmd.AddCommand(supersedingCompleteCmd)
	supersedingCmd.AddCommand(supersedingRollbackCmd)

	rootCmd.AddCommand(consultCmd)
	rootCmd.AddCommand(ownershipCmd)
	rootCmd.AddCommand(supersedingCmd)
}
