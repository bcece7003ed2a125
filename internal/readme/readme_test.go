package readme

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olavph/builds/internal/packages"
)

func testReadmePackages() []*packages.Package {
	return []*packages.Package{
		{Metadata: packages.Metadata{Name: "kernel"}, Version: "4.18.0"},
		{Metadata: packages.Metadata{Name: "libvirt"}, Version: "4.5.0"},
	}
}

func TestUpdateVersionsTable(t *testing.T) {
	content := `# Versions

Package versions built by this repository.

| Package | Version |
| --- | --- |
| kernel | 4.17.0 |
| qemu | 2.12.0 |

See the build instructions below.
`
	expected := `# Versions

Package versions built by this repository.

| Package | Version |
| --- | --- |
| kernel | 4.18.0 |
| libvirt | 4.5.0 |

See the build instructions below.
`
	updated, err := UpdateVersionsTable(content, testReadmePackages())
	require.NoError(t, err)
	assert.Equal(t, expected, updated)
}

func TestUpdateVersionsTableAtEndOfFile(t *testing.T) {
	content := "intro\n\n| Package | Version |\n| --- | --- |\n| old | 1.0 |"
	updated, err := UpdateVersionsTable(content, testReadmePackages())
	require.NoError(t, err)
	assert.Equal(t,
		"intro\n\n| Package | Version |\n| --- | --- |\n| kernel | 4.18.0 |\n| libvirt | 4.5.0 |",
		updated)
}

func TestUpdateVersionsTableMissingTable(t *testing.T) {
	_, err := UpdateVersionsTable("# Versions\n\nNo table here.\n", testReadmePackages())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoVersionsTable))
}
