package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstError(t *testing.T) {
	const testError = ConstError("something went wrong")
	assert.Equal(t, "something went wrong", testError.Error())
	wrapped := errors.Join(testError, errors.New("other"))
	assert.True(t, errors.Is(wrapped, testError))
}

func TestForceSymlink(t *testing.T) {
	dir := t.TempDir()
	linkPath := filepath.Join(dir, "latest")

	require.NoError(t, ForceSymlink("first-target", linkPath))
	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, "first-target", target)

	// Replacing an existing link must not fail
	require.NoError(t, ForceSymlink("second-target", linkPath))
	target, err = os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, "second-target", target)
}

func TestForceSymlinkRefusesRegularFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "latest")
	require.NoError(t, os.WriteFile(filePath, []byte("data"), 0644))
	assert.Error(t, ForceSymlink("target", filePath))
}
