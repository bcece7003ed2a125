// Package builder drives RPM package builds inside mock chroots.
package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/olavph/builds/internal/command"
	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/internal/mock"
	"github.com/olavph/builds/internal/packages"
	"github.com/olavph/builds/internal/storage"
	"github.com/olavph/builds/internal/utils"
	"github.com/olavph/builds/internal/yumrepo"
	"github.com/olavph/builds/logging"
)

const (
	packageCacheDir = "package_cache"

	timestampLayout = "2006-01-02T15:04:05.000000"
)

// Builder builds RPM packages with mock, one run at a time. The run
// timestamp names the mock chroot extension, the scratch build directories
// and the results directory.
type Builder struct {
	cfg       *config.Config
	runner    command.Runner
	storage   storage.Manager
	mock      *mock.Mock
	timestamp string
}

func New(cfg *config.Config, runner command.Runner, storageManager storage.Manager) *Builder {
	timestamp := time.Now().Format(timestampLayout)
	return &Builder{
		cfg:       cfg,
		runner:    runner,
		storage:   storageManager,
		mock:      mock.New(&cfg.Mock, storageManager.WorkDir(), timestamp, runner),
		timestamp: timestamp,
	}
}

func (b *Builder) Timestamp() string {
	return b.timestamp
}

// InitChroot initializes the configured chroot by installing the essential
// packages. This setup is common for all packages that are built and needs
// to be done only once per run.
func (b *Builder) InitChroot(ctx context.Context) error {
	return b.mock.Init(ctx)
}

// Clean discards the chroot build environment.
func (b *Builder) Clean(ctx context.Context) error {
	return b.mock.Clean(ctx)
}

// Build builds the RPM package and its subpackages. deps are the already
// built packages this one declares as build dependencies; their cached RPMs
// are installed into the chroot before the build.
func (b *Builder) Build(ctx context.Context, pkg *packages.Package, deps []*packages.Package) error {
	if err := b.cleanCacheDir(pkg); err != nil {
		return err
	}
	logging.Logger.Infow("starting build process", "package", pkg.Name)

	buildDir, err := b.storage.BuildDir(b.timestamp, pkg.Name)
	if err != nil {
		return err
	}
	sourcesDir, err := b.prepareSources(ctx, pkg, buildDir)
	if err != nil {
		return err
	}
	if err := b.buildSRPM(ctx, pkg, sourcesDir, buildDir); err != nil {
		return err
	}
	if err := b.installExternalDependencies(ctx, pkg, deps); err != nil {
		return err
	}
	if err := b.buildRPM(ctx, pkg, buildDir); err != nil {
		return err
	}
	if err := b.copyRPMs(buildDir, b.packageCacheDir(pkg)); err != nil {
		return err
	}
	results, err := storage.ScanResults(b.packageCacheDir(pkg))
	if err != nil {
		return err
	}
	pkg.Built = true
	pkg.CachedBuildResults = results.RPMs

	if !b.cfg.Mock.KeepBuildDir {
		return os.RemoveAll(buildDir)
	}
	return nil
}

func (b *Builder) buildSRPM(ctx context.Context, pkg *packages.Package, sourcesDir string, buildDir string) error {
	logging.Logger.Infow("building SRPM", "package", pkg.Name)
	args := []string{
		"--buildsrpm", "--no-clean",
		"--spec", pkg.SpecFilePath(),
		"--sources", sourcesDir,
		"--resultdir=" + buildDir,
	}
	args = append(args, pkg.SpecMacros()...)
	return b.mock.Run(ctx, args...)
}

func (b *Builder) buildRPM(ctx context.Context, pkg *packages.Package, buildDir string) error {
	results, err := storage.ScanResults(buildDir)
	if err != nil {
		return err
	}
	if len(results.SourceRPMs) == 0 {
		return utils.ConstError("no SRPM produced for package " + pkg.Name)
	}
	args := append([]string{"--rebuild"}, results.SourceRPMs...)
	args = append(args, "--no-clean", "--resultdir="+buildDir)
	args = append(args, pkg.SpecMacros()...)
	if pkg.RPMMacroFile != "" {
		args = append(args, "--macro-file="+filepath.Join(pkg.MetadataDir, pkg.RPMMacroFile))
	}

	logging.Logger.Infow("building RPM", "package", pkg.Name)
	if err := b.mock.Run(ctx, args...); err != nil {
		// On failure build artifacts are kept so the logs can be read
		logging.Logger.Infow("failed to build RPMs, build artifacts are kept",
			"package", pkg.Name, "buildDir", buildDir)
		return err
	}
	logging.Logger.Infow("success, RPMs built", "package", pkg.Name)
	return nil
}

// installExternalDependencies installs the cached build results of the
// package's build dependencies into the chroot.
func (b *Builder) installExternalDependencies(ctx context.Context, pkg *packages.Package, deps []*packages.Package) error {
	args := []string{"--install"}
	count := 0
	for _, dep := range deps {
		args = append(args, dep.CachedBuildResults...)
		count += len(dep.CachedBuildResults)
	}
	if count == 0 {
		return nil
	}
	logging.Logger.Infow("installing dependencies on chroot",
		"package", pkg.Name, "rpms", count)
	return b.mock.Run(ctx, args...)
}

func (b *Builder) packageCacheDir(pkg *packages.Package) string {
	return filepath.Join(b.storage.WorkDir(), packageCacheDir, pkg.Name)
}

// cleanCacheDir deletes the package's cached results directory.
func (b *Builder) cleanCacheDir(pkg *packages.Package) error {
	cacheDir := b.packageCacheDir(pkg)
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		return nil
	}
	logging.Logger.Debugw("cleaning previously cached build results", "package", pkg.Name)
	return os.RemoveAll(cacheDir)
}

// copyRPMs copies the non-source RPMs from a directory to a target
// directory, creating it if needed.
func (b *Builder) copyRPMs(sourceDir string, targetDir string) error {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}
	results, err := storage.ScanResults(sourceDir)
	if err != nil {
		return err
	}
	logging.Logger.Infow("copying RPMs", "from", sourceDir, "to", targetDir)
	for _, sourcePath := range results.RPMs {
		logging.Logger.Infow("copying RPM file", "file", filepath.Base(sourcePath))
		targetPath := filepath.Join(targetDir, filepath.Base(sourcePath))
		if err := copyFile(sourcePath, targetPath); err != nil {
			return err
		}
	}
	return nil
}

// CopyResults copies the package's cached build results to the timestamped
// results directory.
func (b *Builder) CopyResults(pkg *packages.Package) error {
	resultsDir, err := b.storage.ResultPackagesDir(b.timestamp)
	if err != nil {
		return err
	}
	return b.copyRPMs(b.packageCacheDir(pkg), filepath.Join(resultsDir, pkg.Name))
}

// CreateRepository creates a yum repository in the timestamped results
// directory and writes its configuration file.
func (b *Builder) CreateRepository(ctx context.Context) error {
	resultsDir, err := b.storage.ResultPackagesDir(b.timestamp)
	if err != nil {
		return err
	}
	if err := yumrepo.CreateRepository(ctx, b.runner, resultsDir); err != nil {
		return err
	}

	repoConfig := yumrepo.RenderConfig(yumrepo.Config{
		ShortName: "host-os-local-repo-" + b.timestamp,
		LongName:  "OpenPOWER Host OS local repository built at " + b.timestamp,
		URL:       "file://" + resultsDir,
	})
	repoConfigDir, err := b.storage.RepoConfigDir()
	if err != nil {
		return err
	}
	repoConfigPath := filepath.Join(repoConfigDir, b.timestamp+".repo")
	return os.WriteFile(repoConfigPath, []byte(repoConfig), 0644)
}

// CreateLatestSymlinks points the latest symlinks at the current results
// directory and repository config file.
func (b *Builder) CreateLatestSymlinks() error {
	packagesLatest := filepath.Join(
		b.storage.ResultDir(), "packages", storage.LatestSymlinkName)
	if err := utils.ForceSymlink(b.timestamp, packagesLatest); err != nil {
		return err
	}
	repoConfigDir, err := b.storage.RepoConfigDir()
	if err != nil {
		return err
	}
	repoConfigLatest := filepath.Join(repoConfigDir, storage.LatestSymlinkName)
	return utils.ForceSymlink(b.timestamp+".repo", repoConfigLatest)
}

func copyFile(sourcePath string, targetPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer source.Close()
	target, err := os.Create(targetPath)
	if err != nil {
		return err
	}
	defer target.Close()
	if _, err := io.Copy(target, source); err != nil {
		return fmt.Errorf("failed to copy %s: %w", sourcePath, err)
	}
	return target.Sync()
}
