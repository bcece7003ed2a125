package versions

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadVersionAndMilestone(t *testing.T) {
	data := []struct {
		name     string
		content  string
		expected string
		err      error
	}{
		{
			name:     "version with milestone",
			content:  "format: version-milestone\n2.0-beta\n",
			expected: "2.0-beta",
		},
		{
			name:     "trailing whitespace trimmed",
			content:  "format: version-milestone\n3.1-alpha \n",
			expected: "3.1-alpha",
		},
		{
			name:    "missing version line",
			content: "format: version-milestone\n",
			err:     ErrEmptyVersionFile,
		},
		{
			name:    "empty file",
			content: "",
			err:     ErrEmptyVersionFile,
		},
	}

	for _, tt := range data {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(
				filepath.Join(dir, "VERSION"), []byte(tt.content), 0644))
			versionMilestone, err := ReadVersionAndMilestone(dir)
			if tt.err != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, versionMilestone)
		})
	}
}

func TestReadVersionAndMilestoneMissingFile(t *testing.T) {
	_, err := ReadVersionAndMilestone(t.TempDir())
	assert.Error(t, err)
}

func TestDiscoverPackages(t *testing.T) {
	dir := t.TempDir()
	// kernel and libvirt follow the <name>/<name>.yaml convention
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "kernel"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "kernel", "kernel.yaml"), []byte("name: kernel\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "libvirt"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "libvirt", "libvirt.yaml"), []byte("name: libvirt\n"), 0644))
	// a directory without a matching YAML file is not a package
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-package"), 0755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "not-a-package", "other.yaml"), []byte(""), 0644))
	// a plain file is not a package either
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte(""), 0644))

	packages, err := DiscoverPackages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"kernel", "libvirt"}, packages)
}

func TestDiscoverPackagesMissingDirectory(t *testing.T) {
	_, err := DiscoverPackages(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
