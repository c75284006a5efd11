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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/audit"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/lock"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/ownership"
	"github.com/AleutianAI/AleutianKnowledge/services/knowledge/superseding"
)

// Error categories reported in CommandResult.ErrorType. Callers branch on
// the category, not the message text.
const (
	ErrorValidation = "ValidationError"
	ErrorConflict   = "ConflictError"
	ErrorStorage    = "StorageError"
	ErrorNotFound   = "NotFoundError"
	ErrorBusy       = "Busy"
	ErrorInternal   = "InternalError"
)

// CommandResult wraps command output with metadata. It is always printed
// and the process always exits 0 once arguments parsed: success or
// failure of the operation itself lives in the Success field.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	ErrorType  string      `json:"error_type,omitempty"`
	// FailedStep names the mutation step that failed on storage errors so
	// operators know what was and was not applied.
	FailedStep string `json:"failed_step,omitempty"`
}

// OutputResult prints the result envelope for an operation.
//
// # Inputs
//
//   - cmd: Command name for metadata (e.g. "superseding.execute").
//   - start: Start time for duration calculation.
//   - data: The operation's result on success.
//   - err: The operation's error, nil on success.
func OutputResult(cmd string, start time.Time, data interface{}, err error) {
	result := CommandResult{
		APIVersion: "1.0",
		Command:    cmd,
		Timestamp:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    err == nil,
		Data:       data,
	}
	if err != nil {
		result.Error = err.Error()
		result.ErrorType, result.FailedStep = classifyError(err)
	}

	encoder := json.NewEncoder(os.Stdout)
	if !compactOutput {
		encoder.SetIndent("", "  ")
	}
	if encErr := encoder.Encode(result); encErr != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
	}
}

// classifyError maps service errors onto the stable CLI error categories.
func classifyError(err error) (errorType, failedStep string) {
	var storageErr *superseding.StorageError
	switch {
	case errors.Is(err, lock.ErrBusy):
		return ErrorBusy, ""
	case errors.Is(err, ownership.ErrAlreadyOwned):
		return ErrorConflict, ""
	case errors.Is(err, audit.ErrEventNotFound):
		return ErrorNotFound, ""
	case errors.As(err, &storageErr):
		return ErrorStorage, storageErr.Step
	case errors.Is(err, superseding.ErrValidation),
		errors.Is(err, superseding.ErrProtectedTopic),
		errors.Is(err, superseding.ErrNotPermitted),
		errors.Is(err, ownership.ErrInvalidCommand):
		return ErrorValidation, ""
	default:
		return ErrorInternal, ""
	}
}
