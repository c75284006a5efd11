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
	"fmt"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AleutianKnowledge/cmd/knowledge/config"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/archive"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/audit"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/consult"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/lock"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/ownership"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/registry"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/superseding"
)

// app bundles the services every subcommand needs, built once per
// invocation from the loaded config.
type app struct {
	Registry    *registry.Store
	Audit       *audit.Store
	Archive     *archive.Store
	Lock        *lock.DocumentLock
	Ownership   *ownership.Manager
	Consultant  *consult.Consultant
	Coordinator *superseding.Coordinator
}

// buildApp wires the service graph over the configured state directory.
// The directory layout is fixed: registry.yaml, audit.yaml, archive/, and
// the .knowledge.lock guarding all of them.
func buildApp() (*app, error) {
	cfg := config.Global
	dir := cfg.StateDir
	if stateDir != "" {
		dir = stateDir
	}

	slogger := appLogger.Slog()

	docLock, err := lock.New(lock.Config{
		LockPath:       filepath.Join(dir, ".knowledge.lock"),
		TTL:            time.Duration(cfg.Lock.TTLMinutes) * time.Minute,
		AcquireTimeout: time.Duration(cfg.Lock.AcquireTimeoutMs) * time.Millisecond,
		WatchPaths: []string{
			filepath.Join(dir, "registry.yaml"),
			filepath.Join(dir, "audit.yaml"),
		},
		Logger: slogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize the document lock: %w", err)
	}

	registryStore := registry.NewStore(filepath.Join(dir, "registry.yaml"), docLock, slogger)
	auditStore := audit.NewStore(filepath.Join(dir, "audit.yaml"), slogger)
	archiveStore := archive.NewStore(filepath.Join(dir, "archive"), slogger)

	superseding.SetMetricsEnabled(cfg.Metrics.Enabled)

	return &app{
		Registry:  registryStore,
		Audit:     auditStore,
		Archive:   archiveStore,
		Lock:      docLock,
		Ownership: ownership.NewManager(registryStore, ownership.Config{
			MaxPrimaryTopics: cfg.MaxPrimaryTopics,
		}, slogger),
		Consultant: consult.NewConsultant(registryStore, consult.Config{
			MinSharedKeywords:    cfg.MinSharedKeywords,
			DefaultThresholdDays: cfg.FreshnessThresholdDays,
		}, slogger),
		Coordinator: superseding.NewCoordinator(superseding.Config{
			Registry: registryStore,
			Audit:    auditStore,
			Archive:  archiveStore,
			Lock:     docLock,
			Logger:   slogger,
		}),
	}, nil
}

// Close releases the app's OS resources (the lock's file watcher).
func (a *app) Close() {
	a.Lock.Close()
}
