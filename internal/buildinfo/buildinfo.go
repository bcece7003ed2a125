// Package buildinfo reports information about built packages.
package buildinfo

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/olavph/builds/internal/packages"
	"github.com/olavph/builds/internal/storage"
	"github.com/olavph/builds/logging"
)

const packagesInfoFileName = "packages.json"

type SourceInfo struct {
	Src      string `json:"src"`
	Branch   string `json:"branch"`
	CommitID string `json:"commit_id"`
}

type PackageInfo struct {
	Version string       `json:"version"`
	RPMs    []string     `json:"rpms"`
	Sources []SourceInfo `json:"sources"`
}

// Query collects information about packages. Packages that were not built
// are skipped unless includeUnbuilt is set.
func Query(pkgs []*packages.Package, includeUnbuilt bool) map[string]PackageInfo {
	info := make(map[string]PackageInfo)
	for _, pkg := range pkgs {
		if !pkg.Built && !includeUnbuilt {
			continue
		}
		rpms := make([]string, 0, len(pkg.CachedBuildResults))
		for _, path := range pkg.CachedBuildResults {
			rpms = append(rpms, filepath.Base(path))
		}
		sources := make([]SourceInfo, 0, len(pkg.Sources))
		for _, source := range pkg.Sources {
			if source.Git == nil {
				continue
			}
			sources = append(sources, SourceInfo{
				Src:      source.Git.Src,
				Branch:   source.Git.Branch,
				CommitID: source.Git.CommitID,
			})
		}
		info[pkg.Name] = PackageInfo{
			Version: pkg.Version,
			RPMs:    rpms,
			Sources: sources,
		}
	}
	return info
}

// WriteBuiltPackagesInfo writes information about built packages to
// result_dir/packages/latest/packages.json.
func WriteBuiltPackagesInfo(resultDir string, pkgs []*packages.Package) error {
	content, err := json.MarshalIndent(Query(pkgs, false), "", "    ")
	if err != nil {
		return err
	}
	filePath := filepath.Join(
		resultDir, "packages", storage.LatestSymlinkName, packagesInfoFileName)
	logging.Logger.Infow("writing packages information", "path", filePath)
	return os.WriteFile(filePath, content, 0644)
}
