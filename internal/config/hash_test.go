package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidecarRoundTrip(t *testing.T) {
	path := writeConfig(t, "service:\n  name: runlet\nhistory:\n  path: ./runs.db\n")

	sidecar, err := WriteSidecar(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(sidecar, sidecarSuffix))

	// Unmodified file verifies, and Load succeeds.
	require.NoError(t, VerifySidecar(path))
	_, err = Load(path)
	require.NoError(t, err)

	// Tampering is detected by Load.
	require.NoError(t, os.WriteFile(path, []byte("service:\n  name: tampered\nhistory:\n  path: ./runs.db\n"), 0o644))
	err = VerifySidecar(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
	_, err = Load(path)
	require.Error(t, err)
}

func TestVerifySidecarMissingIsNotAnError(t *testing.T) {
	path := writeConfig(t, "service:\n  name: runlet\nhistory:\n  path: ./runs.db\n")
	assert.NoError(t, VerifySidecar(path))
}

func TestComputeBlake3HashStable(t *testing.T) {
	path := writeConfig(t, "service:\n  name: runlet\n")

	h1, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	h2, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // 256-bit hex
}
