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
	"time"

	"github.com/spf13/cobra"
)

// runConsult answers the pre-execution question for a (command, topic)
// pair. Read-only: consultation never mutates the registry and never
// takes the document lock.
func runConsult(cmd *cobra.Command, args []string) {
	start := time.Now()
	scope := ""
	if len(args) == 3 {
		scope = args[2]
	}

	services, err := buildApp()
	if err != nil {
		OutputResult("consult", start, nil, err)
		return
	}
	defer services.Close()

	advice, err := services.Consultant.Consult(args[0], args[1], scope)
	OutputResult("consult", start, advice, err)
}
