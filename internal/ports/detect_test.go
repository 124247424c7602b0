package ports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caspianhq/caspian/internal/events"
)

func TestParseLsofOutput(t *testing.T) {
	out := []byte("p4242\ncnode\nn*:3000\nn127.0.0.1:8080\np5151\ncpython\nn[::1]:5000\n")

	listeners := parseLsofOutput(out)
	require.Len(t, listeners, 3)

	assert.Equal(t, Listener{PID: 4242, ProcessName: "node", Address: "*", Port: 3000}, listeners[0])
	assert.Equal(t, Listener{PID: 5151, ProcessName: "python", Address: "[::1]", Port: 5000}, listeners[1])
	assert.Equal(t, Listener{PID: 4242, ProcessName: "node", Address: "127.0.0.1", Port: 8080}, listeners[2])
}

func TestParseLsofOutputCollapsesDualStack(t *testing.T) {
	// The same server listening on v4 and v6 shows up twice.
	out := []byte("p4242\ncnode\nn*:3000\nn[::]:3000\n")

	listeners := parseLsofOutput(out)
	require.Len(t, listeners, 1)
	assert.Equal(t, 3000, listeners[0].Port)
}

func TestParseLsofOutputSkipsGarbage(t *testing.T) {
	out := []byte("p4242\ncnode\nnno-port-here\nn*:notaport\n\n")
	assert.Empty(t, parseLsofOutput(out))
}

func TestReconcilePublishesNewAndRemovesVanished(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := NewRegistry(events.NewBus())
	stream := reg.Subscribe(ctx)

	reconcile(reg, "n1", []Listener{
		{PID: 10, ProcessName: "vite", Address: "*", Port: 3000},
		{PID: 10, ProcessName: "vite", Address: "*", Port: 3001},
	})
	require.Len(t, reg.ByNode("n1"), 2)
	assert.Equal(t, events.KindPortAdded, recvEvent(t, stream).Kind)
	assert.Equal(t, events.KindPortAdded, recvEvent(t, stream).Kind)

	// Port 3001 went away, 4000 appeared.
	reconcile(reg, "n1", []Listener{
		{PID: 10, ProcessName: "vite", Address: "*", Port: 3000},
		{PID: 11, ProcessName: "express", Address: "*", Port: 4000},
	})

	byNode := reg.ByNode("n1")
	require.Len(t, byNode, 2)
	gotPorts := map[int]bool{byNode[0].Port: true, byNode[1].Port: true}
	assert.True(t, gotPorts[3000])
	assert.True(t, gotPorts[4000])
}

func TestReconcileSteadyStateEmitsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	reg := NewRegistry(bus)

	listeners := []Listener{{PID: 10, ProcessName: "vite", Address: "*", Port: 3000}}
	reconcile(reg, "n1", listeners)

	stream := reg.Subscribe(ctx)
	reconcile(reg, "n1", listeners)
	reconcile(reg, "n1", listeners)

	// A fresh publish after the steady-state scans proves the stream was
	// silent until now.
	reg.Publish(DynamicPort{Port: 9999, NodeID: "n1", PID: 12})
	e := recvEvent(t, stream)
	require.Equal(t, events.KindPortAdded, e.Kind)
	dp, ok := e.Payload.(DynamicPort)
	require.True(t, ok)
	assert.Equal(t, 9999, dp.Port)
}

func TestReconcileScopedToNode(t *testing.T) {
	reg := NewRegistry(events.NewBus())
	reg.Publish(DynamicPort{Port: 8080, NodeID: "other", PID: 99})

	reconcile(reg, "n1", nil)

	assert.Len(t, reg.ByNode("other"), 1, "other node's ports must survive an empty scan")
}
