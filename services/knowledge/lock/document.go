// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// Config configures a DocumentLock.
type Config struct {
	// LockPath is the path of the lock file guarding the document set.
	// Created on first acquisition if absent.
	LockPath string

	// SessionID identifies this process in lock info sidecars.
	// Defaults to a fresh UUID.
	SessionID string

	// TTL is the advertised lifetime written into the lock info. Purely
	// informational: advisory locks are released by the OS on process
	// exit, so expiry never needs enforcement.
	TTL time.Duration

	// AcquireTimeout bounds how long Acquire retries before returning
	// ErrBusy. Default 2s. Lock holders are always short-lived mutations,
	// so a small timeout is enough.
	AcquireTimeout time.Duration

	// RetryInterval is the pause between acquisition attempts. Default 50ms.
	RetryInterval time.Duration

	// WatchPaths lists coordinated documents to watch for writes made
	// without the lock (hand edits, misbehaving writers). Unlocked
	// modification is logged, never acted on.
	WatchPaths []string

	// Logger receives lock lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Info describes the holder of a document lock. Written as a JSON sidecar
// next to the lock file for visibility and debugging.
type Info struct {
	PID        int       `json:"pid"`
	SessionID  string    `json:"session_id"`
	Reason     string    `json:"reason"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// DocumentLock provides cross-process mutual exclusion over the knowledge
// document set (registry, audit log, archive mutations for a topic).
//
// # Description
//
// The registry, ownership index, and audit log form one logical document
// set. Every mutation must hold this lock for its full
// read-validate-write span; readers never take it. The lock is an
// advisory OS file lock, so it is released automatically if the holding
// process crashes.
//
// # Thread Safety
//
// Safe for concurrent use from multiple goroutines; in-process callers
// additionally serialize through an internal mutex so only one goroutine
// holds the flock at a time.
type DocumentLock struct {
	cfg     Config
	locker  fileLocker
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu   sync.Mutex
	held *Guard
}

// Guard represents a held acquisition. Release exactly once.
type Guard struct {
	lock     *DocumentLock
	file     *os.File
	info     Info
	released bool
}

// New creates a DocumentLock for the given configuration.
//
// # Inputs
//
//   - cfg: Lock configuration. LockPath is required.
//
// # Outputs
//
//   - *DocumentLock: Ready-to-use lock.
//   - error: Non-nil if the lock directory cannot be created or the file
//     watcher cannot be started.
func New(cfg Config) (*DocumentLock, error) {
	if cfg.LockPath == "" {
		return nil, fmt.Errorf("LockPath is required")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 2 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	l := &DocumentLock{
		cfg:     cfg,
		locker:  newPlatformLocker(),
		logger:  cfg.Logger.With("component", "lock.DocumentLock"),
		watcher: watcher,
	}
	go l.watchLoop()

	return l, nil
}

// Acquire obtains the exclusive document lock.
//
// # Description
//
// Retries a non-blocking OS lock attempt every RetryInterval until
// AcquireTimeout elapses or ctx is cancelled, then fails with ErrBusy
// (carrying the current holder's info when readable). On success the
// holder info sidecar is written and the coordinated documents are put
// under external-change watch.
//
// # Inputs
//
//   - ctx: Cancellation for the bounded wait.
//   - reason: Human-readable reason recorded in the info sidecar.
//
// # Outputs
//
//   - *Guard: Release it when the mutation commits or aborts.
//   - error: ErrBusy (as *BusyError) on timeout, ctx.Err() on cancel.
func (l *DocumentLock) Acquire(ctx context.Context, reason string) (*Guard, error) {
	deadline := time.Now().Add(l.cfg.AcquireTimeout)
	for {
		if guard, err := l.tryAcquire(reason); err == nil {
			return guard, nil
		} else if err != ErrWouldBlock {
			return nil, err
		}

		if time.Now().After(deadline) {
			holder := l.readInfo()
			l.logger.Warn("document lock acquisition timed out",
				"lock_path", l.cfg.LockPath,
				"reason", reason)
			return nil, &BusyError{Holder: holder}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

// tryAcquire makes a single non-blocking attempt. Returns ErrWouldBlock
// when the lock is held, by another process or by this one.
func (l *DocumentLock) tryAcquire(reason string) (*Guard, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Another goroutine in this process holds the guard. flock would
	// report the same via EWOULDBLOCK, but only after opening a second
	// descriptor; short-circuit instead.
	if l.held != nil {
		return nil, ErrWouldBlock
	}

	f, err := os.OpenFile(l.cfg.LockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", l.cfg.LockPath, err)
	}

	if err := l.locker.TryLock(f); err != nil {
		f.Close()
		if err == ErrWouldBlock {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("acquiring lock on %s: %w", l.cfg.LockPath, err)
	}

	guard, err := l.acquired(f, reason)
	if err != nil {
		l.locker.Unlock(f)
		f.Close()
		return nil, err
	}
	return guard, nil
}

// acquired finalizes a successful lock attempt (mu held).
func (l *DocumentLock) acquired(f *os.File, reason string) (*Guard, error) {
	now := time.Now()
	info := Info{
		PID:        os.Getpid(),
		SessionID:  l.cfg.SessionID,
		Reason:     reason,
		AcquiredAt: now,
		ExpiresAt:  now.Add(l.cfg.TTL),
	}
	if err := l.writeInfo(info); err != nil {
		return nil, fmt.Errorf("writing lock info: %w", err)
	}

	for _, p := range l.cfg.WatchPaths {
		if err := l.watcher.Add(p); err != nil && !os.IsNotExist(err) {
			l.logger.Debug("cannot watch document", "path", p, "error", err)
		}
	}

	guard := &Guard{lock: l, file: f, info: info}
	l.held = guard

	l.logger.Debug("acquired document lock",
		"lock_path", l.cfg.LockPath,
		"reason", reason)
	return guard, nil
}

// Release gives up the lock. Safe to call once per Guard; a second call
// returns ErrNotHeld.
func (g *Guard) Release() error {
	l := g.lock
	l.mu.Lock()
	defer l.mu.Unlock()

	if g.released || l.held != g {
		return ErrNotHeld
	}
	g.released = true
	l.held = nil

	for _, p := range l.cfg.WatchPaths {
		_ = l.watcher.Remove(p)
	}

	if err := os.Remove(l.infoPath()); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("cannot remove lock info sidecar",
			"path", l.infoPath(),
			"error", err)
	}

	if err := l.locker.Unlock(g.file); err != nil {
		g.file.Close()
		return fmt.Errorf("releasing lock on %s: %w", l.cfg.LockPath, err)
	}
	g.file.Close()

	l.logger.Debug("released document lock", "lock_path", l.cfg.LockPath)
	return nil
}

// Holder returns info about the current lock holder, nil when the lock is
// free or the sidecar is stale (dead PID or expired TTL).
func (l *DocumentLock) Holder() *Info {
	info := l.readInfo()
	if info == nil {
		return nil
	}
	if time.Now().After(info.ExpiresAt) || !IsProcessAlive(info.PID) {
		return nil
	}
	return info
}

// Close stops the external-change watcher. Any held guard should be
// released first.
func (l *DocumentLock) Close() error {
	return l.watcher.Close()
}

// infoPath is the JSON sidecar describing the current holder.
func (l *DocumentLock) infoPath() string {
	return l.cfg.LockPath + ".info"
}

func (l *DocumentLock) writeInfo(info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.infoPath(), data, 0o644)
}

func (l *DocumentLock) readInfo() *Info {
	data, err := os.ReadFile(l.infoPath())
	if err != nil {
		return nil
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}

// watchLoop logs modifications to coordinated documents made without the
// lock. Events during our own critical section are the holder's atomic
// writes and are ignored; events while another process holds the lock are
// its legitimate mutations. Anything else is a hand edit or a misbehaving
// writer.
func (l *DocumentLock) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.mu.Lock()
			held := l.held != nil
			l.mu.Unlock()
			if !held && l.Holder() == nil {
				l.logger.Warn("coordinated document modified without the lock held",
					"path", event.Name,
					"op", event.Op.String())
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("document watcher error", "error", err)
		}
	}
}
