package ports

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFileName is the per-node port manifest read from the worktree root.
const ManifestFileName = "ports.json"

// portsManifest is the on-disk format: {"ports": [{"port": 3000, "label": "Dev"}]}
type portsManifest struct {
	Ports []StaticPort `json:"ports"`
}

// ReadStaticPorts reads the ports.json manifest from a node's worktree.
//
// A missing manifest is ordinary (most nodes declare no ports) and yields an
// empty result. A manifest that exists but cannot be read or parsed is
// surfaced through the Err field rather than a returned error, so one broken
// node cannot fail a bulk read across nodes.
func ReadStaticPorts(worktreePath, nodeID string) StaticPortsResult {
	result := StaticPortsResult{NodeID: nodeID, Ports: []StaticPort{}}

	path := filepath.Join(worktreePath, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result
		}
		result.Err = fmt.Sprintf("failed to read %s: %v", ManifestFileName, err)
		return result
	}

	var manifest portsManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		result.Err = fmt.Sprintf("malformed %s: %v", ManifestFileName, err)
		return result
	}

	for _, p := range manifest.Ports {
		if p.Port <= 0 || p.Port > 65535 {
			result.Err = fmt.Sprintf("malformed %s: port %d out of range", ManifestFileName, p.Port)
			return result
		}
	}

	result.Ports = manifest.Ports
	return result
}
