package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caspianhq/caspian/internal/audit"
	"github.com/caspianhq/caspian/internal/manifest"
	"github.com/caspianhq/caspian/internal/storage"
	"github.com/caspianhq/caspian/internal/types"
)

func testTransitionFixture(t *testing.T) (storage.Storage, string, *types.Node) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewStorage(ctx, &storage.Config{
		Path: filepath.Join(t.TempDir(), "caspian.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	repoPath := t.TempDir()
	repo := &types.Repository{
		ID:         uuid.NewString(),
		Name:       "fixture",
		Path:       repoPath,
		MainBranch: "main",
	}
	require.NoError(t, store.AddRepository(ctx, repo))

	node := &types.Node{
		ID:              uuid.NewString(),
		RepoID:          repo.ID,
		InternalBranch:  "ember-river-k9q2m",
		DisplayName:     "ember-river-k9q2m",
		ParentBranch:    "main",
		State:           types.NodeStateInProgress,
		ExecutionStatus: types.ExecutionIdle,
		WorktreeStatus:  types.WorktreeReady,
	}
	require.NoError(t, store.CreateNode(ctx, node))

	return store, repoPath, node
}

func TestApplyTransitionSyncsManifest(t *testing.T) {
	ctx := context.Background()
	store, repoPath, node := testTransitionFixture(t)

	m := manifest.New(node.InternalBranch, "main", "goal")
	require.NoError(t, manifest.Save(repoPath, m))

	err := applyTransition(ctx, store, repoPath, node, types.NodeStateClosed, "human", "superseded")
	require.NoError(t, err)

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStateClosed, got.State)

	loaded, err := manifest.Load(repoPath, node.InternalBranch)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, types.NodeStateClosed, loaded.Status.State)
	assert.Equal(t, "human", loaded.Status.TransitionedBy)
	assert.Equal(t, "superseded", loaded.Status.CloseReason)

	entries, err := audit.Read(repoPath, node.InternalBranch)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventStateTransition, entries[0].EventType)
	assert.Equal(t, "in_progress", entries[0].PreviousValue)
	assert.Equal(t, "closed", entries[0].NewValue)
	assert.Equal(t, "superseded", entries[0].Reason)
}

func TestApplyTransitionToleratesMissingManifest(t *testing.T) {
	ctx := context.Background()
	store, repoPath, node := testTransitionFixture(t)

	err := applyTransition(ctx, store, repoPath, node, types.NodeStateApproved, "human", "")
	require.NoError(t, err)

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStateApproved, got.State)
}

func TestApplyTransitionUnreadableManifestLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	store, repoPath, node := testTransitionFixture(t)

	require.NoError(t, os.MkdirAll(manifest.Dir(repoPath), 0755))
	require.NoError(t, os.WriteFile(
		manifest.Path(repoPath, node.InternalBranch), []byte("{{not yaml"), 0644))

	err := applyTransition(ctx, store, repoPath, node, types.NodeStateClosed, "human", "")
	require.Error(t, err)

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NodeStateInProgress, got.State)
}
