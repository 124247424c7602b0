package health

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPathExisting(t *testing.T) {
	dir := t.TempDir()
	check := CheckPath(dir)
	assert.True(t, check.Healthy)
	assert.Empty(t, check.Reason)
}

func TestCheckPathMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	check := CheckPath(missing)
	assert.False(t, check.Healthy)
	assert.Equal(t, ReasonPathMissing, check.Reason)
}
