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
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianKnowledge/cmd/knowledge/config"
	"github.com/AleutianAI/AleutianKnowledge/pkg/logging"
)

var appLogger *logging.Logger

func main() {
	// Execute the root command. Cobra handles parsing the arguments; a
	// parse failure is the only path to a non-zero exit. Operation
	// failures are reported inside the printed result.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
	if appLogger != nil {
		appLogger.Close()
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			cfg, err := config.LoadFrom(configPath)
			if err != nil {
				log.Fatalf("Error loading config %s: %v", configPath, err)
			}
			config.Global = cfg
		} else if err := config.Load(); err != nil {
			log.Fatalf("Error loading config: %v", err)
		}

		appLogger = logging.New(logging.Config{
			Level:   logging.ParseLevel(config.Global.Logging.Level),
			LogDir:  config.Global.Logging.Dir,
			Service: "knowledge",
			Quiet:   quietLogs,
		})
	}
}
