package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caspianhq/caspian/internal/events"
)

func TestRegistryPublishAndLookup(t *testing.T) {
	reg := NewRegistry(events.NewBus())

	reg.Publish(DynamicPort{Port: 3000, NodeID: "n1", PID: 10, ProcessName: "vite"})
	reg.Publish(DynamicPort{Port: 8080, NodeID: "n2", PID: 11, ProcessName: "express"})

	byNode := reg.ByNode("n1")
	require.Len(t, byNode, 1)
	assert.Equal(t, 3000, byNode[0].Port)
	assert.False(t, byNode[0].DetectedAt.IsZero(), "DetectedAt should be stamped")

	assert.Len(t, reg.All(), 2)
}

func TestRegistryLastWriteWins(t *testing.T) {
	reg := NewRegistry(events.NewBus())

	reg.Publish(DynamicPort{Port: 3000, NodeID: "n1", PID: 10, ProcessName: "vite"})
	reg.Publish(DynamicPort{Port: 3000, NodeID: "n1", PID: 20, ProcessName: "vite"})

	byNode := reg.ByNode("n1")
	require.Len(t, byNode, 1)
	assert.Equal(t, 20, byNode[0].PID)
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry(events.NewBus())

	reg.Publish(DynamicPort{Port: 3000, NodeID: "n1", PID: 10})
	reg.Remove("n1", 3000)
	assert.Empty(t, reg.ByNode("n1"))

	// Removing an unknown port is a no-op.
	reg.Remove("n1", 4242)
}

func TestRegistryRemoveNode(t *testing.T) {
	reg := NewRegistry(events.NewBus())

	reg.Publish(DynamicPort{Port: 3000, NodeID: "n1", PID: 10})
	reg.Publish(DynamicPort{Port: 3001, NodeID: "n1", PID: 11})
	reg.Publish(DynamicPort{Port: 8080, NodeID: "n2", PID: 12})

	reg.RemoveNode("n1")
	assert.Empty(t, reg.ByNode("n1"))
	assert.Len(t, reg.ByNode("n2"), 1)
}

func TestRegistrySubscribeSeesAddAndRemove(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := NewRegistry(events.NewBus())
	stream := reg.Subscribe(ctx)

	reg.Publish(DynamicPort{Port: 3000, NodeID: "n1", PID: 10})
	reg.Remove("n1", 3000)

	added := recvEvent(t, stream)
	assert.Equal(t, events.KindPortAdded, added.Kind)
	assert.Equal(t, "n1", added.NodeID)

	removed := recvEvent(t, stream)
	assert.Equal(t, events.KindPortRemoved, removed.Kind)
}

func TestRegistrySubscribeFiltersOtherKinds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	reg := NewRegistry(bus)
	stream := reg.Subscribe(ctx)

	bus.Publish(events.Event{Kind: events.KindFilesChanged, NodeID: "n1"})
	reg.Publish(DynamicPort{Port: 3000, NodeID: "n1", PID: 10})

	e := recvEvent(t, stream)
	assert.Equal(t, events.KindPortAdded, e.Kind)
}

func recvEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}
