package packages

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/olavph/builds/internal/utils"
)

const (
	ErrMetadataNotFound = utils.ConstError("package metadata file not found")
)

// GitSource points at a git repository holding the package source code.
type GitSource struct {
	Src      string `yaml:"src"`
	Branch   string `yaml:"branch"`
	CommitID string `yaml:"commit_id"`
}

// Source is one external source of a package. Exactly one of its fields is
// set, keyed in the metadata YAML by the repository type.
type Source struct {
	Git *GitSource `yaml:"git"`
}

// Metadata is the YAML build definition of a package, read from
// <name>/<name>.yaml in the versions repository.
type Metadata struct {
	Name           string   `yaml:"name"`
	SpecFile       string   `yaml:"spec-file"`
	Sources        []Source `yaml:"sources"`
	DownloadSource string   `yaml:"download-source"`
	ExpectsSource  string   `yaml:"expects-source"`
	BuildFiles     string   `yaml:"build-files"`
	RPMMacroFile   string   `yaml:"rpmmacro"`
	Dependencies   []string `yaml:"dependencies"`
	Macros         []Macro  `yaml:"macros"`
}

// Macro is an rpm macro passed to mock with --define.
type Macro struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Package is a package loaded from the versions repository, enriched with
// build state as the build progresses.
type Package struct {
	Metadata

	// MetadataDir is the package directory inside the versions repository.
	MetadataDir string
	// Version and Release are scanned from the spec file.
	Version string
	Release string

	// Built is set once RPMs were produced for the package.
	Built bool
	// CachedBuildResults holds the paths of the RPMs produced by the
	// last successful build of the package.
	CachedBuildResults []string
}

// SpecFilePath is the absolute path to the package RPM spec file.
func (p *Package) SpecFilePath() string {
	return filepath.Join(p.MetadataDir, p.SpecFile)
}

// BuildFilesDir is the directory of extra files copied beside the sources,
// or empty when the package declares none.
func (p *Package) BuildFilesDir() string {
	if p.BuildFiles == "" {
		return ""
	}
	return filepath.Join(p.MetadataDir, p.BuildFiles)
}

// SpecMacros renders the --define arguments for the package macros.
func (p *Package) SpecMacros() []string {
	var args []string
	for _, macro := range p.Macros {
		args = append(args, "--define", fmt.Sprintf("%s %s", macro.Name, macro.Value))
	}
	return args
}

// Load reads the metadata of a package from its directory in the versions
// repository and scans version information from its spec file.
func Load(metadataDir string, name string) (*Package, error) {
	metadataFile := filepath.Join(metadataDir, name+".yaml")
	content, err := os.ReadFile(metadataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMetadataNotFound, metadataFile)
		}
		return nil, err
	}
	metadata := Metadata{Name: name}
	if err := yaml.Unmarshal(content, &metadata); err != nil {
		return nil, fmt.Errorf("invalid package metadata %s: %w", metadataFile, err)
	}
	if metadata.Name == "" {
		metadata.Name = name
	}
	pkg := &Package{Metadata: metadata, MetadataDir: metadataDir}
	if metadata.SpecFile != "" {
		pkg.Version, pkg.Release, err = scanSpecVersion(pkg.SpecFilePath())
		if err != nil {
			return nil, err
		}
	}
	return pkg, nil
}

// scanSpecVersion extracts the Version and Release tags from a spec file.
// Release values commonly carry the %{?dist} suffix, which is stripped.
func scanSpecVersion(specFilePath string) (string, string, error) {
	specFile, err := os.Open(specFilePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to open spec file: %w", err)
	}
	defer specFile.Close()

	var version, release string
	scanner := bufio.NewScanner(specFile)
	for scanner.Scan() {
		line := scanner.Text()
		if value, found := specTagValue(line, "Version:"); found && version == "" {
			version = value
		}
		if value, found := specTagValue(line, "Release:"); found && release == "" {
			release = strings.TrimSuffix(value, "%{?dist}")
		}
		if version != "" && release != "" {
			break
		}
	}
	return version, release, scanner.Err()
}

func specTagValue(line string, tag string) (string, bool) {
	if !strings.HasPrefix(line, tag) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, tag)), true
}
