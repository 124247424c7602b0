package ports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeEmptyInputs(t *testing.T) {
	merged := Merge(nil, nil, "n")
	assert.Empty(t, merged)

	merged = Merge([]StaticPort{}, []DynamicPort{}, "n")
	assert.Empty(t, merged)
}

func TestMergeStaticOnlyIsInactive(t *testing.T) {
	merged := Merge([]StaticPort{{Port: 3000, Label: "Dev"}}, nil, "n")
	require.Len(t, merged, 1)

	mp := merged[0]
	assert.Equal(t, 3000, mp.Port)
	require.NotNil(t, mp.Label)
	assert.Equal(t, "Dev", *mp.Label)
	assert.False(t, mp.IsActive)
	assert.Nil(t, mp.PID)
	assert.Nil(t, mp.ProcessName)
	assert.Nil(t, mp.PaneID)
	assert.Nil(t, mp.Address)
	assert.Nil(t, mp.DetectedAt)
}

func TestMergeStaticWithDynamicMatch(t *testing.T) {
	detected := time.Now()
	static := []StaticPort{{Port: 3000, Label: "Dev"}}
	dynamic := []DynamicPort{{
		Port:        3000,
		NodeID:      "n",
		PID:         5678,
		ProcessName: "vite",
		Address:     "127.0.0.1",
		DetectedAt:  detected,
	}}

	merged := Merge(static, dynamic, "n")
	require.Len(t, merged, 1)

	mp := merged[0]
	assert.True(t, mp.IsActive)
	require.NotNil(t, mp.Label)
	assert.Equal(t, "Dev", *mp.Label)
	require.NotNil(t, mp.PID)
	assert.Equal(t, 5678, *mp.PID)
	require.NotNil(t, mp.ProcessName)
	assert.Equal(t, "vite", *mp.ProcessName)
	require.NotNil(t, mp.DetectedAt)
	assert.True(t, mp.DetectedAt.Equal(detected))
}

func TestMergeDynamicOnlyHasNilLabel(t *testing.T) {
	dynamic := []DynamicPort{{Port: 8080, NodeID: "n", PID: 99, ProcessName: "express"}}

	merged := Merge(nil, dynamic, "n")
	require.Len(t, merged, 1)

	mp := merged[0]
	assert.Equal(t, 8080, mp.Port)
	assert.Nil(t, mp.Label)
	assert.True(t, mp.IsActive)
	require.NotNil(t, mp.ProcessName)
	assert.Equal(t, "express", *mp.ProcessName)
}

func TestMergeExcludesOtherNodes(t *testing.T) {
	dynamic := []DynamicPort{
		{Port: 3000, NodeID: "other", PID: 1},
		{Port: 4000, NodeID: "n", PID: 2},
	}

	merged := Merge(nil, dynamic, "n")
	require.Len(t, merged, 1)
	assert.Equal(t, 4000, merged[0].Port)
}

func TestMergeSortsByPortAscending(t *testing.T) {
	static := []StaticPort{{Port: 8080}, {Port: 3000}}
	dynamic := []DynamicPort{{Port: 5000, NodeID: "n", PID: 7}}

	merged := Merge(static, dynamic, "n")
	require.Len(t, merged, 3)

	var got []int
	for _, mp := range merged {
		got = append(got, mp.Port)
	}
	assert.Equal(t, []int{3000, 5000, 8080}, got)
}

func TestMergeStaticMatchDoesNotDuplicate(t *testing.T) {
	static := []StaticPort{{Port: 3000, Label: "Dev"}, {Port: 9229, Label: "Debug"}}
	dynamic := []DynamicPort{
		{Port: 3000, NodeID: "n", PID: 10, ProcessName: "vite"},
		{Port: 8080, NodeID: "n", PID: 11, ProcessName: "express"},
	}

	merged := Merge(static, dynamic, "n")
	require.Len(t, merged, 3)

	byPort := make(map[int]MergedPort)
	for _, mp := range merged {
		byPort[mp.Port] = mp
	}

	assert.True(t, byPort[3000].IsActive)
	assert.False(t, byPort[9229].IsActive)
	assert.True(t, byPort[8080].IsActive)
	assert.Nil(t, byPort[8080].Label)
}
