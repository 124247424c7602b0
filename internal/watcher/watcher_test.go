package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caspianhq/caspian/internal/events"
)

func recvFilesChanged(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-ch:
			if event.Kind == events.KindFilesChanged {
				return event
			}
		case <-deadline:
			t.Fatal("timed out waiting for files_changed event")
		}
	}
}

func TestWatcherPublishesDebouncedChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	ch := bus.Subscribe(ctx)

	dir := t.TempDir()
	m := NewManager(bus, 100*time.Millisecond)
	require.NoError(t, m.Start("node-1", dir))
	defer m.StopAll()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte("package b"), 0644))

	event := recvFilesChanged(t, ch)
	assert.Equal(t, "node-1", event.NodeID)

	payload, ok := event.Payload.(events.FilesChangedPayload)
	require.True(t, ok)
	assert.Contains(t, payload.Paths, "a.go")
}

func TestWatcherIgnoresFilteredPaths(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	ch := bus.Subscribe(ctx)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0755))

	m := NewManager(bus, 100*time.Millisecond)
	require.NoError(t, m.Start("node-1", dir))
	defer m.StopAll()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "x.js"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug.log"), []byte("log"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644))

	event := recvFilesChanged(t, ch)
	payload := event.Payload.(events.FilesChangedPayload)
	assert.Equal(t, []string{"main.go"}, payload.Paths)
}

func TestWatcherSeesNewSubdirectories(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	ch := bus.Subscribe(ctx)

	dir := t.TempDir()
	m := NewManager(bus, 100*time.Millisecond)
	require.NoError(t, m.Start("node-1", dir))
	defer m.StopAll()

	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0755))
	recvFilesChanged(t, ch)

	// Give the watcher a beat to register the new directory.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "pkg.go"), []byte("package pkg"), 0644))

	event := recvFilesChanged(t, ch)
	payload := event.Payload.(events.FilesChangedPayload)
	assert.Contains(t, payload.Paths, filepath.Join("pkg", "pkg.go"))
}

func TestStartStopLifecycle(t *testing.T) {
	bus := events.NewBus()
	m := NewManager(bus, 100*time.Millisecond)

	dir := t.TempDir()
	require.NoError(t, m.Start("node-1", dir))
	assert.True(t, m.IsWatching("node-1"))

	// Restart replaces the existing watch.
	require.NoError(t, m.Start("node-1", dir))
	assert.True(t, m.IsWatching("node-1"))

	m.Stop("node-1")
	assert.False(t, m.IsWatching("node-1"))

	// Stopping again is harmless.
	m.Stop("node-1")

	require.NoError(t, m.Start("node-1", dir))
	require.NoError(t, m.Start("node-2", t.TempDir()))
	m.StopAll()
	assert.False(t, m.IsWatching("node-1"))
	assert.False(t, m.IsWatching("node-2"))
}

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"src/main.go", false},
		{"node_modules/react/index.js", true},
		{".git/HEAD", true},
		{"app.log", true},
		{"scratch.tmp", true},
		{"notes~", true},
		{".vimrc.swp", true},
		{"dist/bundle.js", true},
		{"distance/calc.go", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shouldIgnore(tt.path), "path %q", tt.path)
	}
}
