package builder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/olavph/builds/internal/packages"
	"github.com/olavph/builds/internal/repository"
	"github.com/olavph/builds/internal/storage"
	"github.com/olavph/builds/internal/versions"
	"github.com/olavph/builds/logging"
)

// prepareSources stages the package source archives in the build directory
// and copies extra build files beside them. It returns the directory mock
// reads sources from.
func (b *Builder) prepareSources(ctx context.Context, pkg *packages.Package, buildDir string) (string, error) {
	logging.Logger.Infow("preparing source files", "package", pkg.Name)
	switch {
	case len(pkg.Sources) > 0:
		for _, source := range pkg.Sources {
			if source.Git == nil {
				continue
			}
			if err := b.archiveGitSource(ctx, pkg, source.Git, buildDir); err != nil {
				return "", err
			}
		}
	case pkg.DownloadSource != "":
		if err := b.downloadSource(ctx, pkg, buildDir); err != nil {
			return "", err
		}
	default:
		logging.Logger.Warnw("package has no external sources", "package", pkg.Name)
	}

	if buildFilesDir := pkg.BuildFilesDir(); buildFilesDir != "" {
		if err := b.copyBuildFiles(buildFilesDir, buildDir); err != nil {
			return "", err
		}
	}
	return buildDir, nil
}

// archiveGitSource clones or refreshes the package source repository, checks
// out the pinned reference and archives the worktree into the build dir.
func (b *Builder) archiveGitSource(ctx context.Context, pkg *packages.Package, source *packages.GitSource, buildDir string) error {
	parentDir := filepath.Join(b.storage.WorkDir(), versions.RepositoriesDir)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return err
	}
	repo, err := repository.Get(source.Src, parentDir, "",
		repository.Options{HTTPProxy: b.cfg.HTTPProxy})
	if err != nil {
		return err
	}
	ref := source.CommitID
	if ref == "" {
		ref = source.Branch
	}
	if err := repo.Checkout(ref, nil); err != nil {
		return err
	}
	_, err = repo.Archive(ctx, b.runner, b.archiveName(pkg), buildDir)
	return err
}

// archiveName is the prefix of the source archive, which the spec file
// expects to match its Source0 declaration.
func (b *Builder) archiveName(pkg *packages.Package) string {
	if pkg.ExpectsSource != "" {
		return pkg.ExpectsSource
	}
	if pkg.Version != "" {
		return pkg.Name + "-" + pkg.Version
	}
	return pkg.Name
}

func (b *Builder) downloadSource(ctx context.Context, pkg *packages.Package, buildDir string) error {
	sourceURL, err := url.Parse(pkg.DownloadSource)
	if err != nil {
		return fmt.Errorf("invalid download source %q: %w", pkg.DownloadSource, err)
	}
	targetPath := filepath.Join(buildDir, filepath.Base(sourceURL.Path))
	logging.Logger.Infow("downloading source",
		"package", pkg.Name, "url", pkg.DownloadSource, "target", targetPath)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, pkg.DownloadSource, nil)
	if err != nil {
		return err
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %s", pkg.DownloadSource, response.Status)
	}

	target, err := os.Create(targetPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(target, response.Body); err != nil {
		target.Close()
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}
	return storage.VerifySourceArchive(targetPath)
}

// copyBuildFiles copies the files required to build a package into its
// sources directory.
func (b *Builder) copyBuildFiles(buildFilesDir string, targetDir string) error {
	entries, err := os.ReadDir(buildFilesDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		sourcePath := filepath.Join(buildFilesDir, entry.Name())
		logging.Logger.Infow("copying build file", "from", sourcePath, "to", targetDir)
		if err := copyFile(sourcePath, filepath.Join(targetDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
