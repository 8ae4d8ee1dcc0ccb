// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoFiles(t *testing.T) {
	_, err := New(nil, func(context.Context, []string) {}, Options{})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestNew_AbsoluteSorted(t *testing.T) {
	dir := t.TempDir()
	b := filepath.Join(dir, "b.yaml")
	a := filepath.Join(dir, "a.yaml")

	w, err := New([]string{b, a, a}, func(context.Context, []string) {}, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, w.Files())
	assert.Len(t, w.dirs, 1)
	assert.Equal(t, 200*time.Millisecond, w.debounce)
}

func TestRelevant(t *testing.T) {
	dir := t.TempDir()
	plan := filepath.Join(dir, "plan.yaml")
	w, err := New([]string{plan}, func(context.Context, []string) {}, Options{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: plan, Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: plan, Op: fsnotify.Create}, true},
		{"chmod", fsnotify.Event{Name: plan, Op: fsnotify.Chmod}, false},
		{"remove", fsnotify.Event{Name: plan, Op: fsnotify.Remove}, false},
		{"other file", fsnotify.Event{Name: filepath.Join(dir, "x.yaml"), Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.event))
		})
	}
}

func TestRun_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	plan := filepath.Join(dir, "plan.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(plan, []byte("family: bram\n"), 0o644))

	var (
		mu    sync.Mutex
		calls [][]string
	)
	w, err := New([]string{plan}, func(_ context.Context, changed []string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, changed)
	}, Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(plan, []byte("family: bram\nsteps: []\n"), 0o644))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{plan}, calls[0])
}

func TestRun_MissingDir(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "gone", "plan.yaml")},
		func(context.Context, []string) {}, Options{})
	require.NoError(t, err)
	assert.Error(t, w.Run(context.Background()))
}
