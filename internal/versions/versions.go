// Package versions manages the packages metadata git repository, which
// carries one directory per buildable package plus the distribution VERSION
// file.
package versions

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/internal/repository"
	"github.com/olavph/builds/internal/utils"
	"github.com/olavph/builds/logging"
)

const (
	// RepositoriesDir is the subdirectory of the work dir holding clones
	// of remote repositories.
	RepositoriesDir = "repositories"

	versionFileName = "VERSION"

	ErrEmptyVersionFile = utils.ConstError("VERSION file has no version entry")
)

// Repository is a checked out packages metadata repository.
type Repository struct {
	*repository.GitRepository
}

// Setup clones (or refreshes) the packages metadata repository under the
// work dir and checks out the configured branch.
func Setup(cfg *config.Config) (*Repository, error) {
	parentDir := filepath.Join(cfg.Directories.WorkDir, RepositoriesDir)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return nil, err
	}
	opts := repository.Options{HTTPProxy: cfg.HTTPProxy}
	repo, err := repository.Get(cfg.MetadataRepo.URL, parentDir, "versions", opts)
	if err != nil {
		logging.Logger.Errorw("failed to clone versions repository", "err", err)
		return nil, err
	}
	if err := repo.Checkout(cfg.MetadataRepo.Branch, cfg.MetadataRepo.Refspecs); err != nil {
		logging.Logger.Errorw("failed to checkout versions repository", "err", err)
		return nil, err
	}
	return &Repository{GitRepository: repo}, nil
}

// ReadVersionAndMilestone reads the current version and milestone (alpha or
// beta) from the VERSION file. The returned value has the format
// <version>-<milestone>; the first line of the file is format information
// and is skipped.
func (r *Repository) ReadVersionAndMilestone() (string, error) {
	return ReadVersionAndMilestone(r.Path())
}

func ReadVersionAndMilestone(repoDir string) (string, error) {
	versionFile, err := os.Open(filepath.Join(repoDir, versionFileName))
	if err != nil {
		return "", err
	}
	defer versionFile.Close()

	scanner := bufio.NewScanner(versionFile)
	// first line holds file format information
	scanner.Scan()
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrEmptyVersionFile
	}
	versionMilestone := strings.TrimSpace(scanner.Text())
	if versionMilestone == "" {
		return "", ErrEmptyVersionFile
	}
	return versionMilestone, nil
}

// DiscoverPackages lists the buildable packages in the repository. A
// package is any directory containing a YAML file with the same name:
//
//	kernel/kernel.yaml    -> discovered
//	libvirt/libvirt.yaml  -> discovered
//	not-a-package/x.yaml  -> ignored
func (r *Repository) DiscoverPackages() ([]string, error) {
	return DiscoverPackages(r.Path())
}

func DiscoverPackages(repoDir string) ([]string, error) {
	entries, err := os.ReadDir(repoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages directory: %w", err)
	}
	var packages []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metadataFile := filepath.Join(repoDir, entry.Name(), entry.Name()+".yaml")
		if info, err := os.Stat(metadataFile); err == nil && info.Mode().IsRegular() {
			packages = append(packages, entry.Name())
		}
	}
	sort.Strings(packages)
	return packages, nil
}

// PackageDir returns the metadata directory of a package.
func (r *Repository) PackageDir(name string) string {
	return filepath.Join(r.Path(), name)
}
