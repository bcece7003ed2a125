package builder

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olavph/builds/internal/command"
	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/internal/packages"
	"github.com/olavph/builds/internal/storage"
	"github.com/olavph/builds/logging"
)

// fakeMockRunner pretends to be mock: building an SRPM drops a .src.rpm in
// the result directory and rebuilding it drops the binary RPMs.
type fakeMockRunner struct {
	t        *testing.T
	commands []command.Command
}

func (r *fakeMockRunner) Run(ctx context.Context, cmd command.Command) (string, error) {
	r.commands = append(r.commands, cmd)
	resultDir := ""
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "--resultdir=") {
			resultDir = strings.TrimPrefix(arg, "--resultdir=")
		}
	}
	switch {
	case contains(cmd.Args, "--buildsrpm"):
		r.writeFile(resultDir, "kernel-4.18.0-15.src.rpm")
		r.writeFile(resultDir, "build.log")
	case contains(cmd.Args, "--rebuild"):
		r.writeFile(resultDir, "kernel-4.18.0-15.ppc64le.rpm")
		r.writeFile(resultDir, "kernel-devel-4.18.0-15.ppc64le.rpm")
	}
	return "", nil
}

func (r *fakeMockRunner) writeFile(dir string, name string) {
	require.NoError(r.t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
}

func contains(args []string, value string) bool {
	for _, arg := range args {
		if arg == value {
			return true
		}
	}
	return false
}

func newTestBuilder(t *testing.T, runner command.Runner, keepBuildDir bool) (*Builder, storage.Manager) {
	root := t.TempDir()
	cfg := &config.Config{
		Directories: config.DirectoriesConfig{
			WorkDir:   filepath.Join(root, "workspace"),
			ResultDir: filepath.Join(root, "result"),
		},
		Mock: config.MockConfig{
			Binary:       "/usr/bin/mock",
			ConfigFile:   "hostos-ppc64le.cfg",
			KeepBuildDir: keepBuildDir,
		},
	}
	storageManager, err := storage.NewManager(&cfg.Directories)
	require.NoError(t, err)
	return New(cfg, runner, storageManager), storageManager
}

func testPackage() *packages.Package {
	return &packages.Package{
		Metadata: packages.Metadata{
			Name:     "kernel",
			SpecFile: "kernel.spec",
			Macros:   []packages.Macro{{Name: "dist", Value: ".el7"}},
		},
		MetadataDir: "/versions/kernel",
		Version:     "4.18.0",
	}
}

func TestBuild(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	runner := &fakeMockRunner{t: t}
	builder, storageManager := newTestBuilder(t, runner, false)
	pkg := testPackage()

	require.NoError(t, builder.Build(context.Background(), pkg, nil))

	require.Len(t, runner.commands, 2)
	srpmArgs := runner.commands[0].Args
	assert.Contains(t, srpmArgs, "--buildsrpm")
	assert.Contains(t, srpmArgs, "/versions/kernel/kernel.spec")
	assert.Contains(t, srpmArgs, "--define")
	assert.Contains(t, srpmArgs, "dist .el7")
	rebuildArgs := runner.commands[1].Args
	assert.Contains(t, rebuildArgs, "--rebuild")

	assert.True(t, pkg.Built)
	require.Len(t, pkg.CachedBuildResults, 2)
	// source RPMs are not cached
	for _, path := range pkg.CachedBuildResults {
		assert.False(t, strings.HasSuffix(path, ".src.rpm"))
	}

	// the scratch build directory is removed after a successful build
	buildDir := filepath.Join(
		storageManager.WorkDir(), "mock_build", builder.Timestamp(), pkg.Name)
	assert.NoDirExists(t, buildDir)
}

func TestBuildKeepsBuildDir(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	runner := &fakeMockRunner{t: t}
	builder, storageManager := newTestBuilder(t, runner, true)
	pkg := testPackage()

	require.NoError(t, builder.Build(context.Background(), pkg, nil))
	buildDir := filepath.Join(
		storageManager.WorkDir(), "mock_build", builder.Timestamp(), pkg.Name)
	assert.DirExists(t, buildDir)
}

func TestBuildInstallsDependencyResults(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	runner := &fakeMockRunner{t: t}
	builder, _ := newTestBuilder(t, runner, false)

	dep := &packages.Package{
		Metadata:           packages.Metadata{Name: "libvirt"},
		Built:              true,
		CachedBuildResults: []string{"/cache/libvirt/libvirt-4.5.0-10.ppc64le.rpm"},
	}
	require.NoError(t, builder.Build(context.Background(), testPackage(), []*packages.Package{dep}))

	require.Len(t, runner.commands, 3)
	installArgs := runner.commands[1].Args
	assert.Contains(t, installArgs, "--install")
	assert.Contains(t, installArgs, "/cache/libvirt/libvirt-4.5.0-10.ppc64le.rpm")
}

func TestCopyResults(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	runner := &fakeMockRunner{t: t}
	builder, storageManager := newTestBuilder(t, runner, false)
	pkg := testPackage()
	require.NoError(t, builder.Build(context.Background(), pkg, nil))

	require.NoError(t, builder.CopyResults(pkg))
	copied := filepath.Join(storageManager.ResultDir(),
		"packages", builder.Timestamp(), "kernel", "kernel-4.18.0-15.ppc64le.rpm")
	assert.FileExists(t, copied)
}

func TestCreateRepository(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	runner := &fakeMockRunner{t: t}
	builder, storageManager := newTestBuilder(t, runner, false)
	require.NoError(t, builder.CreateRepository(context.Background()))

	require.Len(t, runner.commands, 1)
	assert.Equal(t, "createrepo", runner.commands[0].Name)

	repoConfigPath := filepath.Join(storageManager.ResultDir(),
		"repository_config", builder.Timestamp()+".repo")
	content, err := os.ReadFile(repoConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "host-os-local-repo-"+builder.Timestamp())
	assert.Contains(t, string(content), "file://")
}

func TestCreateLatestSymlinks(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	runner := &fakeMockRunner{t: t}
	builder, storageManager := newTestBuilder(t, runner, false)
	_, err := storageManager.ResultPackagesDir(builder.Timestamp())
	require.NoError(t, err)
	_, err = storageManager.RepoConfigDir()
	require.NoError(t, err)

	require.NoError(t, builder.CreateLatestSymlinks())

	packagesLatest, err := os.Readlink(
		filepath.Join(storageManager.ResultDir(), "packages", "latest"))
	require.NoError(t, err)
	assert.Equal(t, builder.Timestamp(), packagesLatest)

	repoConfigLatest, err := os.Readlink(
		filepath.Join(storageManager.ResultDir(), "repository_config", "latest"))
	require.NoError(t, err)
	assert.Equal(t, builder.Timestamp()+".repo", repoConfigLatest)
}
