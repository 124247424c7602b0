package ports

import "sort"

// Merge combines a node's statically configured ports with dynamically
// detected listening ports into one deduplicated view for display.
//
// Dynamic ports belonging to other nodes are ignored. A static port with a
// same-number dynamic match becomes active and inherits the runtime
// metadata; a static port without one is emitted inactive with nil runtime
// fields; a dynamic port with no static entry is emitted active with a nil
// label. The result is sorted ascending by port number. Static port numbers
// are assumed unique per node.
func Merge(static []StaticPort, dynamic []DynamicPort, nodeID string) []MergedPort {
	byPort := make(map[int]*DynamicPort)
	for i := range dynamic {
		if dynamic[i].NodeID == nodeID {
			byPort[dynamic[i].Port] = &dynamic[i]
		}
	}

	merged := make([]MergedPort, 0, len(static)+len(byPort))
	seen := make(map[int]bool, len(static))

	for _, sp := range static {
		seen[sp.Port] = true
		mp := MergedPort{
			Port:   sp.Port,
			NodeID: nodeID,
			Label:  labelPtr(sp.Label),
		}
		if dp, ok := byPort[sp.Port]; ok {
			mp.IsActive = true
			copyRuntime(&mp, dp)
		}
		merged = append(merged, mp)
	}

	for i := range dynamic {
		dp := &dynamic[i]
		if dp.NodeID != nodeID || seen[dp.Port] {
			continue
		}
		mp := MergedPort{
			Port:     dp.Port,
			NodeID:   nodeID,
			IsActive: true,
		}
		copyRuntime(&mp, dp)
		merged = append(merged, mp)
	}

	// Stable keeps static-then-dynamic insertion order on the (unmodeled)
	// chance of a tie in port number.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Port < merged[j].Port
	})
	return merged
}

func copyRuntime(mp *MergedPort, dp *DynamicPort) {
	pid := dp.PID
	mp.PID = &pid
	if dp.ProcessName != "" {
		name := dp.ProcessName
		mp.ProcessName = &name
	}
	if dp.PaneID != "" {
		pane := dp.PaneID
		mp.PaneID = &pane
	}
	if dp.Address != "" {
		addr := dp.Address
		mp.Address = &addr
	}
	detected := dp.DetectedAt
	mp.DetectedAt = &detected
}

func labelPtr(label string) *string {
	if label == "" {
		return nil
	}
	return &label
}
