// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

// KnowledgeConfig is the CLI configuration persisted at
// ~/.aleutian/knowledge.yaml. Field constraints are enforced by
// go-playground/validator on load.
type KnowledgeConfig struct {
	// StateDir holds registry.yaml, audit.yaml, the archive tree, and the
	// document lock. Relative paths resolve against the working
	// directory, so each analyzed project carries its own knowledge base.
	StateDir string `yaml:"state_dir" validate:"required"`

	// FreshnessThresholdDays is the default staleness boundary for topics
	// that do not set their own.
	FreshnessThresholdDays int `yaml:"freshness_threshold_days" validate:"gte=1"`

	// MinSharedKeywords is the related-topic fuzzy-match threshold.
	MinSharedKeywords int `yaml:"min_shared_keywords" validate:"gte=1"`

	// MaxPrimaryTopics is the over-ownership conflict threshold. A limit
	// set in the registry document itself takes precedence.
	MaxPrimaryTopics int `yaml:"max_primary_topics" validate:"gte=1"`

	Lock    LockConfig    `yaml:"lock"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LockConfig tunes document-lock acquisition.
type LockConfig struct {
	// AcquireTimeoutMs bounds how long a mutation waits for the lock
	// before failing fast as busy.
	AcquireTimeoutMs int `yaml:"acquire_timeout_ms" validate:"gte=0"`

	// TTLMinutes is the advertised lock lifetime in the info sidecar.
	TTLMinutes int `yaml:"ttl_minutes" validate:"gte=1"`
}

// MetricsConfig toggles OpenTelemetry metric recording.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir enables file logging when set.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() KnowledgeConfig {
	return KnowledgeConfig{
		StateDir:               ".aleutian/knowledge",
		FreshnessThresholdDays: 30,
		MinSharedKeywords:      2,
		MaxPrimaryTopics:       5,
		Lock: LockConfig{
			AcquireTimeoutMs: 2000,
			TTLMinutes:       5,
		},
		Metrics: MetricsConfig{Enabled: false},
		Logging: LoggingConfig{Level: "info"},
	}
}
