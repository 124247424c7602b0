package ports

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(content), 0o644))
}

func TestReadStaticPortsMissingManifest(t *testing.T) {
	result := ReadStaticPorts(t.TempDir(), "n1")
	assert.Equal(t, "n1", result.NodeID)
	assert.Empty(t, result.Ports)
	assert.Empty(t, result.Err)
}

func TestReadStaticPortsValid(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"ports":[{"port":3000,"label":"Dev"},{"port":9229}]}`)

	result := ReadStaticPorts(dir, "n1")
	require.Empty(t, result.Err)
	require.Len(t, result.Ports, 2)
	assert.Equal(t, StaticPort{Port: 3000, Label: "Dev"}, result.Ports[0])
	assert.Equal(t, StaticPort{Port: 9229}, result.Ports[1])
}

func TestReadStaticPortsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"ports": [`)

	result := ReadStaticPorts(dir, "n1")
	assert.Empty(t, result.Ports)
	assert.Contains(t, result.Err, "malformed")
}

func TestReadStaticPortsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"ports":[{"port":0,"label":"bad"}]}`)

	result := ReadStaticPorts(dir, "n1")
	assert.Empty(t, result.Ports)
	assert.Contains(t, result.Err, "out of range")
}
