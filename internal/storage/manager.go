package storage

import (
	"os"
	"path/filepath"

	"github.com/olavph/builds/internal/config"
)

const (
	mockBuildDir      = "mock_build"
	packagesDir       = "packages"
	repoConfigDirName = "repository_config"

	// LatestSymlinkName is the name of the symlink pointing at the most
	// recent timestamped results directory.
	LatestSymlinkName = "latest"
)

// Manager lays out the scratch (work) and results directories used by a
// build run.
type Manager interface {
	WorkDir() string
	ResultDir() string
	// BuildDir creates and returns the scratch build directory of one
	// package within a run.
	BuildDir(timestamp string, packageName string) (string, error)
	// ResultPackagesDir creates and returns the directory receiving the
	// RPMs of a run.
	ResultPackagesDir(timestamp string) (string, error)
	// RepoConfigDir creates and returns the directory receiving yum
	// repository config files.
	RepoConfigDir() (string, error)
}

type managerImpl struct {
	workDir   string
	resultDir string
}

func NewManager(cfg *config.DirectoriesConfig) (*managerImpl, error) {
	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, err
	}
	resultDir, err := filepath.Abs(cfg.ResultDir)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{workDir, resultDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return &managerImpl{workDir: workDir, resultDir: resultDir}, nil
}

func (m *managerImpl) WorkDir() string {
	return m.workDir
}

func (m *managerImpl) ResultDir() string {
	return m.resultDir
}

func (m *managerImpl) BuildDir(timestamp string, packageName string) (string, error) {
	dir := filepath.Join(m.workDir, mockBuildDir, timestamp, packageName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func (m *managerImpl) ResultPackagesDir(timestamp string) (string, error) {
	dir := filepath.Join(m.resultDir, packagesDir, timestamp)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func (m *managerImpl) RepoConfigDir() (string, error) {
	dir := filepath.Join(m.resultDir, repoConfigDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
