package ports

import "time"

// StaticPort is a port declared in a node's ports.json manifest,
// independent of runtime state.
type StaticPort struct {
	Port  int    `json:"port"`
	Label string `json:"label,omitempty"`
}

// DynamicPort is a port discovered by runtime process/socket inspection.
type DynamicPort struct {
	Port        int       `json:"port"`
	NodeID      string    `json:"node_id"`
	PID         int       `json:"pid"`
	ProcessName string    `json:"process_name"`
	PaneID      string    `json:"pane_id,omitempty"`
	Address     string    `json:"address,omitempty"`
	DetectedAt  time.Time `json:"detected_at"`
}

// MergedPort is the unified UI view of a port for one node. Identity is
// (Port, NodeID): a static and a dynamic port describing the same number on
// the same node are the same entity. Runtime fields are set only when the
// port is active; Label is nil for dynamic-only ports.
type MergedPort struct {
	Port     int     `json:"port"`
	NodeID   string  `json:"node_id"`
	Label    *string `json:"label"`
	IsActive bool    `json:"is_active"`

	PID         *int       `json:"pid"`
	ProcessName *string    `json:"process_name"`
	PaneID      *string    `json:"pane_id"`
	Address     *string    `json:"address"`
	DetectedAt  *time.Time `json:"detected_at"`
}

// StaticPortsResult carries a node's declared ports, or the reason they
// could not be read. A broken manifest is reported as a value, never as a
// returned error; the caller decides whether it is worth surfacing.
type StaticPortsResult struct {
	NodeID string       `json:"node_id"`
	Ports  []StaticPort `json:"ports"`
	Err    string       `json:"error,omitempty"`
}
