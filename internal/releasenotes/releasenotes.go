// Package releasenotes generates release posts for the distribution
// website repository.
package releasenotes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/olavph/builds/internal/config"
	"github.com/olavph/builds/internal/packages"
	"github.com/olavph/builds/internal/repository"
	"github.com/olavph/builds/internal/utils"
	"github.com/olavph/builds/internal/versions"
	"github.com/olavph/builds/logging"
)

const (
	websitePostsDir = "_posts"

	releaseFileTitle  = "OpenPOWER Host OS release"
	releaseFileLayout = "release"

	ErrMissingParameter = utils.ConstError("required parameter missing")
)

type packageReleaseInfo struct {
	Name    string       `yaml:"name"`
	Version string       `yaml:"version"`
	Release string       `yaml:"release"`
	Sources []sourceInfo `yaml:"sources"`
}

type sourceInfo struct {
	Src      string `yaml:"src"`
	Branch   string `yaml:"branch"`
	CommitID string `yaml:"commit_id"`
}

type ReleaseFileInfo struct {
	Title          string               `yaml:"title"`
	Layout         string               `yaml:"layout"`
	ReleaseTag     string               `yaml:"release_tag"`
	BuildsCommit   string               `yaml:"builds_commit"`
	VersionsCommit string               `yaml:"versions_commit"`
	Packages       []packageReleaseInfo `yaml:"packages"`
}

// ValidateUpdateParameters checks the committer and push parameters needed
// when repository updates are requested.
func ValidateUpdateParameters(cfg *config.UpdatesConfig) error {
	required := map[string]string{
		"updater-name":  cfg.UpdaterName,
		"updater-email": cfg.UpdaterEmail,
	}
	if cfg.PushUpdates {
		required["push-repo-url"] = cfg.PushRepoURL
		required["push-repo-branch"] = cfg.PushRepoBranch
	}
	for parameter, value := range required {
		if value == "" {
			return fmt.Errorf("%w: %s", ErrMissingParameter, parameter)
		}
	}
	return nil
}

// Run creates a release notes post in the website repository, listing
// package versions and source commits from the versions repository,
// optionally committing and pushing the result.
func Run(ctx context.Context, cfg *config.Config) error {
	if cfg.Updates.CommitUpdates {
		if err := ValidateUpdateParameters(&cfg.Updates); err != nil {
			return err
		}
	}

	versionsRepo, err := versions.Setup(cfg)
	if err != nil {
		return err
	}
	versionMilestone, err := versionsRepo.ReadVersionAndMilestone()
	if err != nil {
		return err
	}

	manager := packages.NewManager(versionsRepo)
	if err := manager.Prepare(cfg.Packages); err != nil {
		return err
	}
	pkgs := manager.Packages()
	names := make([]string, 0, len(pkgs))
	for _, pkg := range pkgs {
		names = append(names, pkg.Name)
	}
	logging.Logger.Infow("creating release notes", "packages", names)

	repositoriesDir := filepath.Join(cfg.Directories.WorkDir, versions.RepositoriesDir)
	websiteRepo, err := repository.Get(cfg.Updates.ReleaseNotesRepoURL,
		repositoriesDir, "", repository.Options{HTTPProxy: cfg.HTTPProxy})
	if err != nil {
		return err
	}
	if err := websiteRepo.Checkout(cfg.Updates.ReleaseNotesRepoBranch, nil); err != nil {
		return err
	}

	releaseDate := time.Now().Format("2006-01-02")
	releaseTag := versionMilestone + "-" + releaseDate
	releaseFilePath := filepath.Join(websiteRepo.Path(), websitePostsDir,
		releaseDate+"-release.markdown")
	if err := writeVersionInfo(releaseTag, releaseFilePath, versionsRepo, pkgs); err != nil {
		return err
	}

	if !cfg.Updates.CommitUpdates {
		return nil
	}
	commitMessage := "Host OS release of " + releaseDate
	err = websiteRepo.CommitChanges(commitMessage,
		cfg.Updates.UpdaterName, cfg.Updates.UpdaterEmail)
	if err != nil {
		return err
	}
	if cfg.Updates.PushUpdates {
		return websiteRepo.PushHeadCommits(
			cfg.Updates.PushRepoURL, cfg.Updates.PushRepoBranch)
	}
	return nil
}

// writeVersionInfo writes the release information file. It contains package
// names, versions, branches and commit IDs as a YAML front matter block.
func writeVersionInfo(releaseTag string, filePath string, versionsRepo *versions.Repository, pkgs []*packages.Package) error {
	logging.Logger.Infow("creating release information", "releaseTag", releaseTag)

	versionsCommit, err := versionsRepo.HeadCommit()
	if err != nil {
		return err
	}
	info := ReleaseFileInfo{
		Title:          releaseFileTitle,
		Layout:         releaseFileLayout,
		ReleaseTag:     releaseTag,
		BuildsCommit:   buildsRepoCommit(),
		VersionsCommit: versionsCommit,
		Packages:       make([]packageReleaseInfo, 0, len(pkgs)),
	}
	for _, pkg := range pkgs {
		info.Packages = append(info.Packages, newPackageReleaseInfo(pkg))
	}

	content, err := RenderReleaseFile(info)
	if err != nil {
		return err
	}
	logging.Logger.Infow("writing release information",
		"releaseTag", releaseTag, "path", filePath)
	return os.WriteFile(filePath, content, 0644)
}

// RenderReleaseFile renders the markdown post: a YAML front matter block and
// no body.
func RenderReleaseFile(info ReleaseFileInfo) ([]byte, error) {
	header, err := yaml.Marshal(info)
	if err != nil {
		return nil, err
	}
	return []byte("---\n" + string(header) + "---\n"), nil
}

func newPackageReleaseInfo(pkg *packages.Package) packageReleaseInfo {
	info := packageReleaseInfo{
		Name:    pkg.Name,
		Version: pkg.Version,
		Release: pkg.Release,
		Sources: make([]sourceInfo, 0, len(pkg.Sources)),
	}
	for _, source := range pkg.Sources {
		if source.Git == nil {
			continue
		}
		info.Sources = append(info.Sources, sourceInfo{
			Src:      source.Git.Src,
			Branch:   source.Git.Branch,
			CommitID: source.Git.CommitID,
		})
	}
	return info
}

// buildsRepoCommit reports the commit of the builds repository itself when
// the tool runs from a checkout, for traceability in the release post.
func buildsRepoCommit() string {
	repo, err := repository.Open(".", repository.Options{})
	if err != nil {
		return ""
	}
	commit, err := repo.HeadCommit()
	if err != nil {
		return ""
	}
	return commit
}
