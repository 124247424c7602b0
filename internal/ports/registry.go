package ports

import (
	"context"
	"sync"
	"time"

	"github.com/caspianhq/caspian/internal/events"
)

// Registry is the process-wide set of dynamically detected listening ports.
//
// Entries are keyed by (node, port); publishing the same key again replaces
// the previous entry (last write wins). Add/remove are pushed onto the event
// bus so subscribers (the ports UI stream) see changes without polling.
type Registry struct {
	bus *events.Bus

	mu      sync.Mutex
	entries map[registryKey]DynamicPort
}

type registryKey struct {
	nodeID string
	port   int
}

// NewRegistry creates an empty registry publishing change events on bus.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		bus:     bus,
		entries: make(map[registryKey]DynamicPort),
	}
}

// Publish records a detected port, stamping DetectedAt if unset.
func (r *Registry) Publish(dp DynamicPort) {
	if dp.DetectedAt.IsZero() {
		dp.DetectedAt = time.Now()
	}

	r.mu.Lock()
	r.entries[registryKey{dp.NodeID, dp.Port}] = dp
	r.mu.Unlock()

	r.bus.Publish(events.Event{
		Kind:    events.KindPortAdded,
		NodeID:  dp.NodeID,
		Payload: dp,
	})
}

// Remove drops a port. Removing an unknown port is a no-op.
func (r *Registry) Remove(nodeID string, port int) {
	r.mu.Lock()
	dp, ok := r.entries[registryKey{nodeID, port}]
	if ok {
		delete(r.entries, registryKey{nodeID, port})
	}
	r.mu.Unlock()

	if ok {
		r.bus.Publish(events.Event{
			Kind:    events.KindPortRemoved,
			NodeID:  nodeID,
			Payload: dp,
		})
	}
}

// RemoveNode drops every port belonging to a node, e.g. when its agent or
// terminal goes away.
func (r *Registry) RemoveNode(nodeID string) {
	r.mu.Lock()
	var removed []DynamicPort
	for key, dp := range r.entries {
		if key.nodeID == nodeID {
			removed = append(removed, dp)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, dp := range removed {
		r.bus.Publish(events.Event{
			Kind:    events.KindPortRemoved,
			NodeID:  nodeID,
			Payload: dp,
		})
	}
}

// ByNode returns the registered ports for one node.
func (r *Registry) ByNode(nodeID string) []DynamicPort {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []DynamicPort
	for key, dp := range r.entries {
		if key.nodeID == nodeID {
			out = append(out, dp)
		}
	}
	return out
}

// All returns every registered port across nodes.
func (r *Registry) All() []DynamicPort {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DynamicPort, 0, len(r.entries))
	for _, dp := range r.entries {
		out = append(out, dp)
	}
	return out
}

// Subscribe returns a stream of port add/remove events. Other event kinds
// on the shared bus are filtered out. The channel closes when ctx ends.
func (r *Registry) Subscribe(ctx context.Context) <-chan events.Event {
	in := r.bus.Subscribe(ctx)
	out := make(chan events.Event, 16)

	go func() {
		defer close(out)
		for e := range in {
			if e.Kind != events.KindPortAdded && e.Kind != events.KindPortRemoved {
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
